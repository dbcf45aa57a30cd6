package window

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"watchpoint/src/payload"
)

// writeImageFile encodes img next to path and renames it into place so a
// failed save never leaves a truncated file behind.
func writeImageFile(path string, img image.Image, format string, quality int) error {
	if path == "" {
		return fmt.Errorf("save: empty path")
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".watchpoint_save_*")
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	tmp := f.Name()
	if err := payload.Encode(f, img, format, quality); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save: %w", err)
	}
	return nil
}
