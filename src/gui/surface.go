package gui

import (
	"errors"
	"fmt"
	"image"
	"log"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"watchpoint/src/clipboard"
	"watchpoint/src/monitor"
	"watchpoint/src/payload"
	"watchpoint/src/render"
	"watchpoint/src/settings"
	"watchpoint/src/window"
)

// Title is the preview window title.
const Title = "WatchPoint Preview"

// Surface is the fyne implementation of window.Surface.
type Surface struct {
	app     fyne.App
	win     fyne.Window
	h       window.Handlers
	preview *previewWidget
	text    *readOnlyEntry
	panel   fyne.CanvasObject
	toolbar fyne.CanvasObject
	sizeSel *widget.Select
	content *fyne.Container
}

// NewFactory returns a window.SurfaceFactory that builds Surfaces on app.
func NewFactory(app fyne.App) window.SurfaceFactory {
	return func(h window.Handlers) (window.Surface, error) {
		return NewSurface(app, h)
	}
}

// NewSurface builds the preview window. It must run on the UI thread.
func NewSurface(app fyne.App, h window.Handlers) (s *Surface, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("create preview window: %v", r)
		}
	}()
	if app == nil {
		return nil, errors.New("no application")
	}
	s = &Surface{app: app, h: h}
	s.win = app.NewWindow(Title)
	s.preview = newPreviewWidget()
	s.preview.scale = func() float32 { return s.win.Canvas().Scale() }
	s.preview.onScroll = h.Scroll
	s.preview.onDrag = h.Drag
	s.preview.onSecondary = s.showContextMenu
	s.text = newReadOnlyEntry()
	s.text.SetText(window.WaitingText)
	s.panel = newPanel(s.text)
	s.toolbar = s.buildToolbar()
	s.content = container.NewBorder(s.toolbar, nil, nil, s.panel, s.preview)
	s.win.SetContent(s.content)
	s.win.Resize(fyne.NewSize(800, 600))
	s.win.SetCloseIntercept(func() {
		if h.Close != nil {
			h.Close()
		}
	})
	s.win.Canvas().SetOnTypedRune(func(r rune) {
		if h.Key != nil {
			h.Key(string(r))
		}
	})
	s.win.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if h.Key == nil {
			return
		}
		switch ev.Name {
		case fyne.KeyF11, fyne.KeyEscape:
			h.Key(string(ev.Name))
		}
	})
	return s, nil
}

func (s *Surface) buildToolbar() fyne.CanvasObject {
	key := func(name string) func() {
		return func() {
			if s.h.Key != nil {
				s.h.Key(name)
			}
		}
	}
	s.sizeSel = widget.NewSelect(window.SizePresets(), func(mode string) {
		if s.h.SizeMode != nil {
			s.h.SizeMode(mode)
		}
	})
	s.sizeSel.PlaceHolder = "Size"
	return container.NewHBox(
		widget.NewButton("Reset", key("r")),
		widget.NewButton("Zoom In", key("+")),
		widget.NewButton("Zoom Out", key("-")),
		widget.NewButton("1:1", key("1")),
		s.sizeSel,
		widget.NewButton("Fullscreen", func() {
			if s.h.Fullscreen != nil {
				s.h.Fullscreen()
			}
		}),
		widget.NewButton("Settings", s.openSettings),
	)
}

func (s *Surface) showContextMenu(pos fyne.Position) {
	menu := fyne.NewMenu("",
		fyne.NewMenuItem("Save Image As...", s.openSaveDialog),
		fyne.NewMenuItem("Copy Image to Clipboard", s.copyImage),
		fyne.NewMenuItem("Copy Panel Text", s.copyText),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Toggle Drawer", func() {
			if s.h.Key != nil {
				s.h.Key("p")
			}
		}),
		fyne.NewMenuItem("Settings...", s.openSettings),
	)
	widget.ShowPopUpMenuAtPosition(menu, s.win.Canvas(), pos)
}

func (s *Surface) openSaveDialog() {
	rec := settings.Defaults()
	if s.h.Settings != nil {
		rec = s.h.Settings()
	}
	d := dialog.NewFileSave(func(w fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, s.win)
			return
		}
		if w == nil {
			return
		}
		path := w.URI().Path()
		// the encoder writes through its own temp file
		_ = w.Close()
		if s.h.SaveTo == nil {
			return
		}
		s.h.SaveTo(path, s.reportResult("Save"))
	}, s.win)
	d.SetFileName(fmt.Sprintf("watchpoint_%s%s", time.Now().Format("20060102_150405"), payload.Extension(rec.SaveFormat)))
	d.Show()
}

func (s *Surface) copyImage() {
	if s.h.Copy != nil {
		s.h.Copy(s.reportResult("Copy"))
	}
}

func (s *Surface) copyText() {
	if err := clipboard.Write(s.text.Text); err != nil {
		s.reportResult("Copy text")(err)
	}
}

// reportResult shows worker errors back on the UI thread.
func (s *Surface) reportResult(action string) func(error) {
	return func(err error) {
		if err == nil {
			return
		}
		log.Printf("gui: %s failed: %v", action, err)
		fyne.Do(func() {
			dialog.ShowError(fmt.Errorf("%s failed: %w", action, err), s.win)
		})
	}
}

func (s *Surface) openSettings() {
	rec := settings.Defaults()
	if s.h.Settings != nil {
		rec = s.h.Settings()
	}
	toolbar := widget.NewCheck("Show toolbar", nil)
	toolbar.SetChecked(rec.ShowToolbar)
	sizeMode := widget.NewSelect(settings.SizeModes(), nil)
	sizeMode.SetSelected(rec.WindowSizeMode)
	format := widget.NewRadioGroup([]string{settings.FormatPNG, settings.FormatJPEG}, nil)
	format.Horizontal = true
	format.SetSelected(rec.SaveFormat)
	qualityLabel := widget.NewLabel(strconv.Itoa(rec.JPEGQuality))
	quality := widget.NewSlider(settings.MinJPEGQuality, settings.MaxJPEGQuality)
	quality.Step = 1
	quality.SetValue(float64(rec.JPEGQuality))
	quality.OnChanged = func(v float64) { qualityLabel.SetText(strconv.Itoa(int(v))) }
	format.OnChanged = func(v string) {
		if v == settings.FormatJPEG {
			quality.Enable()
		} else {
			quality.Disable()
		}
	}
	format.OnChanged(rec.SaveFormat)

	items := []*widget.FormItem{
		widget.NewFormItem("", toolbar),
		widget.NewFormItem("Window size", sizeMode),
		widget.NewFormItem("Save format", format),
		widget.NewFormItem("JPEG quality", container.NewBorder(nil, nil, nil, qualityLabel, quality)),
	}
	d := dialog.NewForm("WatchPoint Settings", "Save", "Cancel", items, func(ok bool) {
		if !ok || s.h.ApplySettings == nil {
			return
		}
		next := rec
		next.ShowToolbar = toolbar.Checked
		next.WindowSizeMode = sizeMode.Selected
		next.SaveFormat = format.Selected
		next.JPEGQuality = int(quality.Value)
		s.h.ApplySettings(next)
	}, s.win)
	d.Resize(fyne.NewSize(420, 280))
	d.Show()
}

// Show makes the window visible.
func (s *Surface) Show() error {
	s.win.Show()
	return nil
}

// Hide withdraws the window without destroying it.
func (s *Surface) Hide() error {
	s.win.Hide()
	return nil
}

// Minimize iconifies the window.
func (s *Surface) Minimize() error { return nativeMinimize(s.win) }

// Raise brings the window to the front and focuses it.
func (s *Surface) Raise() error {
	s.win.RequestFocus()
	if err := nativeRaise(s.win); err != nil && !errors.Is(err, ErrUnsupported) {
		return err
	}
	return nil
}

// Geometry reports the window rectangle in screen pixels.
func (s *Surface) Geometry() (monitor.Rect, error) { return nativeGeometry(s.win) }

// SetGeometry moves and resizes the window. Without native access only the
// size can be applied.
func (s *Surface) SetGeometry(r monitor.Rect) error {
	err := nativeSetGeometry(s.win, r)
	if errors.Is(err, ErrUnsupported) {
		f := s.win.Canvas().Scale()
		if f <= 0 {
			f = 1
		}
		s.win.Resize(fyne.NewSize(float32(r.Width)/f, float32(r.Height)/f))
		return nil
	}
	return err
}

// SetBorderless toggles window decorations.
func (s *Surface) SetBorderless(on bool) error { return nativeSetBorderless(s.win, on) }

// Present displays p with view v.
func (s *Surface) Present(p *payload.Payload, v render.View) error {
	if !p.Valid() {
		return payload.ErrNoImage
	}
	s.preview.present(p, v)
	return nil
}

// SetView redraws the current image with v.
func (s *Surface) SetView(v render.View) { s.preview.setView(v) }

// Viewport is the preview area in pixels.
func (s *Surface) Viewport() image.Point { return s.preview.viewport() }

// SetPanelText replaces the side panel text.
func (s *Surface) SetPanelText(text string) { s.text.SetText(text) }

// SetToolbarVisible shows or hides the toolbar.
func (s *Surface) SetToolbarVisible(on bool) { setVisible(s.toolbar, on) }

// SetPanelVisible shows or hides the side panel.
func (s *Surface) SetPanelVisible(on bool) { setVisible(s.panel, on) }

// SetSizeMode reflects the active size mode in the toolbar selector.
func (s *Surface) SetSizeMode(mode string) {
	cb := s.sizeSel.OnChanged
	s.sizeSel.OnChanged = nil
	s.sizeSel.SetSelected(mode)
	s.sizeSel.OnChanged = cb
}

func setVisible(o fyne.CanvasObject, on bool) {
	if on {
		o.Show()
	} else {
		o.Hide()
	}
}
