package monitor

import "watchpoint/src/settings"

// Offset from a monitor's origin used for auto-placed windows.
const placementOffset = 50

// Geometry sizes a window for the given size mode on monitor m. The result
// is positioned at the monitor's origin plus the placement offset and never
// exceeds the monitor.
func Geometry(mode string, width, height int, m Descriptor) Rect {
	w, h := width, height
	switch mode {
	case settings.SizeHalfVertical:
		w, h = m.Width/2, m.Height-100
	case settings.SizeHalfHorizontal:
		w, h = m.Width, m.Height/2-50
	case settings.SizeQuarter:
		w, h = m.Width/2, m.Height/2
	}
	if w > m.Width {
		w = m.Width
	}
	if h > m.Height {
		h = m.Height
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return Rect{X: m.X + placementOffset, Y: m.Y + placementOffset, Width: w, Height: h}
}

// Placement computes the initial window rectangle for rec. The configured
// monitor is resolved first; a saved position is kept only when it lies on
// that monitor.
func Placement(rec settings.Record, dir *Directory) (Rect, Descriptor) {
	target := resolveIn(dir.List(), rec.MonitorIndex)
	r := Geometry(rec.WindowSizeMode, rec.WindowWidth, rec.WindowHeight, target)
	if rec.HasPosition() && target.Bounds().Contains(*rec.WindowX, *rec.WindowY) {
		r.X, r.Y = *rec.WindowX, *rec.WindowY
	}
	return r, target
}
