package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// ImageRef points the host UI at a stored preview image.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// ErrBadName is returned for filenames that are not plain temp file names.
var ErrBadName = errors.New("invalid preview filename")

const filePrefix = "watchpoint_"

// TempStore writes floating preview images into a temp directory.
type TempStore struct {
	dir string
	seq atomic.Uint64
}

// NewTempStore returns a store rooted at dir (created on demand). An empty
// dir uses the system temp directory.
func NewTempStore(dir string) *TempStore {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "watchpoint")
	}
	return &TempStore{dir: dir}
}

// Dir returns the directory holding stored images.
func (s *TempStore) Dir() string { return s.dir }

// Write stores images as PNG and returns their references in order.
func (s *TempStore) Write(images []image.Image) ([]ImageRef, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	ms := time.Now().UnixMilli()
	refs := make([]ImageRef, 0, len(images))
	for i, img := range images {
		if img == nil || img.Bounds().Empty() {
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return refs, fmt.Errorf("encode preview %d: %w", i, err)
		}
		name, err := s.writeUnique(ms, i, buf.Bytes())
		if err != nil {
			return refs, fmt.Errorf("write preview %d: %w", i, err)
		}
		refs = append(refs, ImageRef{Filename: name, Subfolder: "", Type: "temp"})
	}
	return refs, nil
}

// writeUnique creates a new file for image i of the batch stamped ms. Names
// already taken, also by a concurrent writer, get a sequence suffix.
func (s *TempStore) writeUnique(ms int64, i int, data []byte) (string, error) {
	name := fmt.Sprintf("%s%d_%d.png", filePrefix, ms, i)
	for {
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			name = fmt.Sprintf("%s%d_%d_%d.png", filePrefix, ms, i, s.seq.Add(1))
			continue
		}
		if err != nil {
			return "", err
		}
		_, werr := f.Write(data)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			os.Remove(f.Name())
			return "", werr
		}
		return name, nil
	}
}

// Path resolves a stored filename to a path inside the store.
func (s *TempStore) Path(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) ||
		!strings.HasPrefix(filename, filePrefix) {
		return "", ErrBadName
	}
	return filepath.Join(s.dir, filename), nil
}

// Prune removes stored previews older than maxAge and returns how many
// files were deleted.
func (s *TempStore) Prune(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(s.dir, e.Name())) == nil {
			n++
		}
	}
	return n, nil
}
