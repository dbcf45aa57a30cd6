package monitor

import (
	"image"
	"log"

	"github.com/kbinani/screenshot"
)

// Fallback size used when the platform reports no displays at all.
const (
	FallbackWidth  = 1920
	FallbackHeight = 1080
)

// Rect is a window or monitor rectangle in virtual-screen coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether the point lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Center returns the midpoint of r.
func (r Rect) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Intersect returns the overlapping area of r and o in pixels.
func (r Rect) Intersect(o Rect) int {
	in := r.image().Intersect(o.image())
	if in.Empty() {
		return 0
	}
	return in.Dx() * in.Dy()
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

func (r Rect) image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Descriptor is an immutable snapshot of one connected monitor.
type Descriptor struct {
	Index  int `json:"index"`
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Bounds returns the descriptor as a Rect.
func (d Descriptor) Bounds() Rect {
	return Rect{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height}
}

// Synthesized is returned when enumeration yields nothing.
func Synthesized() Descriptor {
	return Descriptor{Index: 0, Width: FallbackWidth, Height: FallbackHeight}
}

// Source enumerates display bounds.
type Source interface {
	NumDisplays() int
	Bounds(i int) image.Rectangle
}

// ScreenSource reads active display bounds from the platform.
type ScreenSource struct{}

func (ScreenSource) NumDisplays() int             { return screenshot.NumActiveDisplays() }
func (ScreenSource) Bounds(i int) image.Rectangle { return screenshot.GetDisplayBounds(i) }

// Directory lists monitors from a Source. It holds no cache, so every call
// observes hot-plug changes.
type Directory struct {
	src Source
}

// NewDirectory returns a Directory over src. A nil src uses ScreenSource.
func NewDirectory(src Source) *Directory {
	if src == nil {
		src = ScreenSource{}
	}
	return &Directory{src: src}
}

// List enumerates the connected monitors ordered by index. Platform failures
// produce an empty list.
func (d *Directory) List() (out []Descriptor) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("monitor: enumeration panicked: %v", r)
			out = nil
		}
	}()
	n := d.src.NumDisplays()
	for i := 0; i < n; i++ {
		b := d.src.Bounds(i)
		if b.Empty() {
			continue
		}
		out = append(out, Descriptor{
			Index:  i,
			X:      b.Min.X,
			Y:      b.Min.Y,
			Width:  b.Dx(),
			Height: b.Dy(),
		})
	}
	return out
}

// Resolve returns the monitor with the given index, else the first one, else
// a synthesized descriptor. It never fails.
func (d *Directory) Resolve(index int) Descriptor {
	return resolveIn(d.List(), index)
}

func resolveIn(monitors []Descriptor, index int) Descriptor {
	for _, m := range monitors {
		if m.Index == index {
			return m
		}
	}
	if len(monitors) > 0 {
		return monitors[0]
	}
	return Synthesized()
}

// Locate finds the monitor a window is on: the one containing the window
// origin, then the one containing its centre, then the largest overlap.
func Locate(window Rect, monitors []Descriptor) Descriptor {
	if len(monitors) == 0 {
		return Synthesized()
	}
	for _, m := range monitors {
		if m.Bounds().Contains(window.X, window.Y) {
			return m
		}
	}
	cx, cy := window.Center()
	for _, m := range monitors {
		if m.Bounds().Contains(cx, cy) {
			return m
		}
	}
	best, bestArea := monitors[0], 0
	for _, m := range monitors {
		if a := m.Bounds().Intersect(window); a > bestArea {
			best, bestArea = m, a
		}
	}
	return best
}
