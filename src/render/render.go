// Package render lays out and rasterizes the preview image for a viewport.
package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

const (
	MinZoom = 0.1
	MaxZoom = 10.0
	// ZoomStep is the factor applied by one zoom-in or zoom-out action.
	ZoomStep = 1.2
	// MinVisible is how many pixels of the image a pan must leave inside the
	// viewport on each axis.
	MinVisible = 32
)

// Background fills the viewport outside the image.
var Background = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}

// View is the user-controlled part of the layout.
type View struct {
	Zoom     float64 `json:"zoom"`
	PanX     float64 `json:"pan_x"`
	PanY     float64 `json:"pan_y"`
	OneToOne bool    `json:"one_to_one"`
}

// DefaultView fits the image with no pan.
func DefaultView() View { return View{Zoom: 1} }

// ClampZoom forces z into [MinZoom, MaxZoom]. NaN becomes 1.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return 1
	}
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}

// Scale returns the image-to-viewport scale factor. One-to-one mode ignores
// the zoom level.
func Scale(img, viewport image.Point, v View) float64 {
	if v.OneToOne {
		return 1
	}
	zoom := ClampZoom(v.Zoom)
	if img.X <= 0 || img.Y <= 0 || viewport.X <= 0 || viewport.Y <= 0 {
		return zoom
	}
	fit := math.Min(float64(viewport.X)/float64(img.X), float64(viewport.Y)/float64(img.Y))
	return fit * zoom
}

// Layout returns where the image lands inside a viewport of the given size.
// The image is centred and then offset by the pan.
func Layout(img, viewport image.Point, v View) image.Rectangle {
	s := Scale(img, viewport, v)
	w := int(math.Round(float64(img.X) * s))
	h := int(math.Round(float64(img.Y) * s))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	x := (viewport.X-w)/2 + int(math.Round(v.PanX))
	y := (viewport.Y-h)/2 + int(math.Round(v.PanY))
	return image.Rect(x, y, x+w, y+h)
}

// ClampPan limits the pan so at least MinVisible pixels of the image (or the
// whole image, if smaller) stay within the viewport.
func ClampPan(img, viewport image.Point, v View) View {
	v.Zoom = ClampZoom(v.Zoom)
	s := Scale(img, viewport, v)
	w := float64(img.X) * s
	h := float64(img.Y) * s
	v.PanX = clampAxis(v.PanX, w, float64(viewport.X))
	v.PanY = clampAxis(v.PanY, h, float64(viewport.Y))
	return v
}

func clampAxis(pan, size, view float64) float64 {
	if math.IsNaN(pan) {
		return 0
	}
	keep := math.Min(MinVisible, math.Min(size, view))
	centre := (view - size) / 2
	lo := keep - size - centre
	hi := view - keep - centre
	if lo > hi {
		return 0
	}
	return math.Max(lo, math.Min(hi, pan))
}

// Frame rasterizes src into a new viewport-sized image.
func Frame(src image.Image, viewport image.Point, v View) *image.RGBA {
	if viewport.X < 1 {
		viewport.X = 1
	}
	if viewport.Y < 1 {
		viewport.Y = 1
	}
	dst := image.NewRGBA(image.Rectangle{Max: viewport})
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: Background}, image.Point{}, draw.Src)
	if src == nil || src.Bounds().Empty() {
		return dst
	}
	sb := src.Bounds()
	target := Layout(sb.Size(), viewport, v)
	visible := target.Intersect(dst.Bounds())
	if visible.Empty() {
		return dst
	}
	if target.Size() == sb.Size() {
		draw.Draw(dst, target, src, sb.Min, draw.Over)
		return dst
	}
	// scale only the source pixels that land in the viewport
	fx := float64(target.Dx()) / float64(sb.Dx())
	fy := float64(target.Dy()) / float64(sb.Dy())
	sr := image.Rect(
		sb.Min.X+int(math.Floor(float64(visible.Min.X-target.Min.X)/fx)),
		sb.Min.Y+int(math.Floor(float64(visible.Min.Y-target.Min.Y)/fy)),
		sb.Min.X+int(math.Ceil(float64(visible.Max.X-target.Min.X)/fx)),
		sb.Min.Y+int(math.Ceil(float64(visible.Max.Y-target.Min.Y)/fy)),
	).Intersect(sb)
	if sr.Empty() {
		return dst
	}
	dr := image.Rect(
		target.Min.X+int(math.Round(float64(sr.Min.X-sb.Min.X)*fx)),
		target.Min.Y+int(math.Round(float64(sr.Min.Y-sb.Min.Y)*fy)),
		target.Min.X+int(math.Round(float64(sr.Max.X-sb.Min.X)*fx)),
		target.Min.Y+int(math.Round(float64(sr.Max.Y-sb.Min.Y)*fy)),
	)
	var scaler draw.Scaler = draw.CatmullRom
	if fx > 4 {
		scaler = draw.NearestNeighbor
	}
	scaler.Scale(dst, dr, src, sr, draw.Over, nil)
	return dst
}
