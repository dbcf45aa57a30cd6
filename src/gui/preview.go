package gui

import (
	"image"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"watchpoint/src/payload"
	"watchpoint/src/render"
)

// previewWidget draws the current payload through render.Frame and turns
// pointer input into handler calls.
type previewWidget struct {
	widget.BaseWidget

	mu      sync.Mutex
	current *payload.Payload
	view    render.View
	raster  *canvas.Raster

	onScroll    func(delta float64)
	onDrag      func(dx, dy float64)
	onSecondary func(pos fyne.Position)
	scale       func() float32
}

func newPreviewWidget() *previewWidget {
	p := &previewWidget{view: render.DefaultView(), scale: func() float32 { return 1 }}
	p.raster = canvas.NewRaster(p.draw)
	p.raster.ScaleMode = canvas.ImageScalePixels
	p.ExtendBaseWidget(p)
	return p
}

// draw is called by the toolkit with the raster size in pixels.
func (p *previewWidget) draw(w, h int) image.Image {
	p.mu.Lock()
	cur, view := p.current, p.view
	p.mu.Unlock()
	var src image.Image
	if cur.Valid() {
		src = cur.Image
	}
	return render.Frame(src, image.Pt(w, h), view)
}

func (p *previewWidget) present(pl *payload.Payload, v render.View) {
	p.mu.Lock()
	p.current, p.view = pl, v
	p.mu.Unlock()
	p.raster.Refresh()
}

func (p *previewWidget) setView(v render.View) {
	p.mu.Lock()
	p.view = v
	p.mu.Unlock()
	p.raster.Refresh()
}

// viewport returns the widget size in pixels.
func (p *previewWidget) viewport() image.Point {
	s := p.Size()
	f := p.scale()
	return image.Pt(int(s.Width*f), int(s.Height*f))
}

func (p *previewWidget) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(p.raster)
}

func (p *previewWidget) MinSize() fyne.Size { return fyne.NewSize(64, 64) }

func (p *previewWidget) Scrolled(ev *fyne.ScrollEvent) {
	if p.onScroll != nil {
		p.onScroll(float64(ev.Scrolled.DY))
	}
}

func (p *previewWidget) Dragged(ev *fyne.DragEvent) {
	if p.onDrag != nil {
		f := float64(p.scale())
		p.onDrag(float64(ev.Dragged.DX)*f, float64(ev.Dragged.DY)*f)
	}
}

func (p *previewWidget) DragEnd() {}

func (p *previewWidget) TappedSecondary(ev *fyne.PointEvent) {
	if p.onSecondary != nil {
		p.onSecondary(ev.AbsolutePosition)
	}
}
