// Package payload holds decoded preview images and their codecs.
package payload

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"time"

	"golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"watchpoint/src/settings"
)

var (
	// ErrNoImage is returned when an operation needs a displayed image and
	// none is loaded.
	ErrNoImage = errors.New("no image loaded")
	// ErrEmpty is returned for a zero-length or zero-size image.
	ErrEmpty = errors.New("empty image")
	// ErrTooLarge is returned when the header claims more than MaxPixels.
	ErrTooLarge = errors.New("image too large")
)

// MaxPixels bounds the decoded raster so a forged header cannot exhaust
// memory before decoding fails.
const MaxPixels = 64 << 20

// FormatBMP is accepted by Encode in addition to the settings formats.
const FormatBMP = "bmp"

// Payload is one image produced by the host, already converted to a
// displayable raster. Payloads are immutable once built.
type Payload struct {
	Image    image.Image
	Format   string
	NodeID   string
	Seq      uint64
	Received time.Time
}

// Valid reports whether p can be displayed.
func (p *Payload) Valid() bool {
	return p != nil && p.Image != nil && !p.Image.Bounds().Empty()
}

// Size returns the pixel size, or zero for an invalid payload.
func (p *Payload) Size() image.Point {
	if !p.Valid() {
		return image.Point{}
	}
	return p.Image.Bounds().Size()
}

// New wraps an already decoded image.
func New(img image.Image, nodeID string, seq uint64) *Payload {
	return &Payload{Image: img, Format: "raw", NodeID: nodeID, Seq: seq, Received: time.Now()}
}

// Decode reads png, jpeg, gif, bmp, webp or tiff data.
func Decode(data []byte, nodeID string, seq uint64) (*Payload, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrEmpty
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, ErrEmpty
	}
	return &Payload{Image: img, Format: format, NodeID: nodeID, Seq: seq, Received: time.Now()}, nil
}

// Encode writes img in the given format. Unknown formats fall back to png;
// quality only applies to jpeg and is clamped.
func Encode(w io.Writer, img image.Image, format string, quality int) error {
	if img == nil || img.Bounds().Empty() {
		return ErrNoImage
	}
	var err error
	switch NormalizeFormat(format) {
	case settings.FormatJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: settings.ClampQuality(quality)})
	case FormatBMP:
		err = bmp.Encode(w, img)
	default:
		err = png.Encode(w, img)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return nil
}

// NormalizeFormat maps user spellings onto png, jpeg or bmp.
func NormalizeFormat(format string) string {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), ".")) {
	case "jpg", "jpeg":
		return settings.FormatJPEG
	case "bmp":
		return FormatBMP
	default:
		return settings.FormatPNG
	}
}

// FormatForPath picks the encoder from a file extension, falling back to
// the configured format when the extension is missing or unknown.
func FormatForPath(path, fallback string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 || strings.ContainsAny(path[i:], `/\`) {
		return NormalizeFormat(fallback)
	}
	switch strings.ToLower(path[i+1:]) {
	case "jpg", "jpeg", "png", "bmp":
		return NormalizeFormat(path[i+1:])
	}
	return NormalizeFormat(fallback)
}

// Extension returns the file extension (with dot) for a format.
func Extension(format string) string {
	switch NormalizeFormat(format) {
	case settings.FormatJPEG:
		return ".jpg"
	case FormatBMP:
		return ".bmp"
	}
	return ".png"
}
