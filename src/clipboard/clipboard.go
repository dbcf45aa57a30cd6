package clipboard

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"

	"golang.design/x/clipboard"
)

// ErrUnavailable is returned when the platform clipboard could not be initialized.
var ErrUnavailable = errors.New("clipboard unavailable")

var (
	writeMu sync.Mutex
	initMu  sync.Mutex
	ready   bool
)

// Init initializes the platform clipboard. It is safe to call more than once.
func Init() error {
	initMu.Lock()
	defer initMu.Unlock()
	if ready {
		return nil
	}
	if err := clipboard.Init(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	ready = true
	return nil
}

func available() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return ready
}

// Write performs a mutex-guarded clipboard write to prevent corruption under parallel writes.
func Write(text string) error {
	if !available() {
		return ErrUnavailable
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

// WriteImage places img on the clipboard as PNG.
func WriteImage(img image.Image) error {
	if img == nil {
		return errors.New("no image to copy")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode clipboard image: %w", err)
	}
	return WritePNG(buf.Bytes())
}

// WritePNG places already encoded PNG bytes on the clipboard.
func WritePNG(data []byte) error {
	if !available() {
		return ErrUnavailable
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtImage, data)
	return nil
}
