// Package screenshot grabs monitor or region images to feed the preview.
package screenshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/kbinani/screenshot"

	"watchpoint/src/monitor"
)

// ErrOffscreen is returned when a region does not overlap any monitor.
var ErrOffscreen = errors.New("region is outside every monitor")

// Grabber captures screen rectangles.
type Grabber interface {
	CaptureRect(r image.Rectangle) (*image.RGBA, error)
}

type screenGrabber struct{}

func (screenGrabber) CaptureRect(r image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(r)
}

// Capturer resolves monitors through a Directory and grabs their pixels.
type Capturer struct {
	dir  *monitor.Directory
	grab Grabber
}

// New returns a Capturer. A nil dir uses the platform directory and a nil
// grab captures the real screen.
func New(dir *monitor.Directory, grab Grabber) *Capturer {
	if dir == nil {
		dir = monitor.NewDirectory(nil)
	}
	if grab == nil {
		grab = screenGrabber{}
	}
	return &Capturer{dir: dir, grab: grab}
}

// Monitor captures the whole monitor with the given index, falling back the
// same way window placement does.
func (c *Capturer) Monitor(index int) (*image.RGBA, error) {
	d := c.dir.Resolve(index)
	return c.Region(d.Bounds())
}

// Region captures r clipped to the union of connected monitors.
func (c *Capturer) Region(r monitor.Rect) (*image.RGBA, error) {
	if r.Empty() {
		return nil, fmt.Errorf("invalid region dimensions: width=%d, height=%d", r.Width, r.Height)
	}
	clip := clipToMonitors(r, c.dir.List())
	if clip.Empty() {
		return nil, ErrOffscreen
	}
	img, err := c.grab.CaptureRect(clip)
	if err != nil {
		return nil, fmt.Errorf("failed to capture region: %w", err)
	}
	return img, nil
}

// EncodePNG renders img for transport.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// clipToMonitors intersects r with the bounding box of monitors. An empty
// monitor list leaves r unchanged.
func clipToMonitors(r monitor.Rect, monitors []monitor.Descriptor) image.Rectangle {
	want := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
	if len(monitors) == 0 {
		return want
	}
	var union image.Rectangle
	for _, m := range monitors {
		b := m.Bounds()
		union = union.Union(image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height))
	}
	return want.Intersect(union)
}
