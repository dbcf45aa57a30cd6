// Package window owns the single persistent preview window. Exported
// Manager methods may be called from any goroutine; they only post work to
// the UI thread. Everything else in this package runs on the UI thread.
package window

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"watchpoint/src/clipboard"
	"watchpoint/src/monitor"
	"watchpoint/src/payload"
	"watchpoint/src/render"
	"watchpoint/src/settings"
	"watchpoint/src/worker"
)

// WaitingText is shown in the side panel until the first text arrives.
const WaitingText = "Waiting for prompt..."

// ErrBusy is returned when a save or copy cannot be queued.
var ErrBusy = errors.New("busy, try again")

// Poster schedules fn to run on the UI thread. It must not block.
type Poster func(fn func())

// SurfaceFactory builds the toolkit window. It runs on the UI thread and
// receives the handlers the surface must call for user input.
type SurfaceFactory func(h Handlers) (Surface, error)

// Surface is the toolkit window. It has no destroy operation: once built it
// lives until the process exits.
type Surface interface {
	Show() error
	Hide() error
	Minimize() error
	Raise() error
	Geometry() (monitor.Rect, error)
	SetGeometry(r monitor.Rect) error
	SetBorderless(on bool) error
	Present(p *payload.Payload, v render.View) error
	SetView(v render.View)
	Viewport() image.Point
	SetPanelText(text string)
	SetToolbarVisible(on bool)
	SetPanelVisible(on bool)
	SetSizeMode(mode string)
}

// Handlers are the callbacks a Surface invokes on the UI thread.
type Handlers struct {
	Close         func()
	Key           func(name string)
	Scroll        func(delta float64)
	Drag          func(dx, dy float64)
	SaveTo        func(path string, done func(error))
	Copy          func(done func(error))
	SizeMode      func(mode string)
	Settings      func() settings.Record
	ApplySettings func(rec settings.Record)
	Fullscreen    func()
}

// Options wires a Manager.
type Options struct {
	Post     Poster
	Factory  SurfaceFactory
	Monitors *monitor.Directory
	Settings *settings.Store
	Pool     *worker.Pool
	// Copy places an image on the clipboard. Defaults to clipboard.WriteImage.
	Copy func(image.Image) error
}

// Manager is the actor that owns the preview window.
type Manager struct {
	post    Poster
	factory SurfaceFactory
	dir     *monitor.Directory
	store   *settings.Store
	pool    *worker.Pool
	copyImg func(image.Image) error
	started time.Time

	createMu        sync.Mutex
	createRequested bool

	images mailbox[*payload.Payload]
	texts  mailbox[string]

	received    atomic.Uint64
	coalesced   atomic.Uint64
	rendered    atomic.Uint64
	renderErrs  atomic.Uint64
	textUpdates atomic.Uint64
	seq         atomic.Uint64

	statusMu sync.Mutex
	snapshot uiSnapshot

	// UI thread only.
	surface       Surface
	state         State
	wasFullscreen bool
	view          render.View
	savedGeom     monitor.Rect
	fsMonitor     monitor.Descriptor
	toolbar       bool
	panel         bool
	panelText     string
	sizeMode      string
	current       *payload.Payload
}

// New returns a Manager in the Uninitialized state.
func New(opts Options) *Manager {
	if opts.Post == nil {
		panic("window: Options.Post is required")
	}
	if opts.Monitors == nil {
		opts.Monitors = monitor.NewDirectory(nil)
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteImage
	}
	m := &Manager{
		post:      opts.Post,
		factory:   opts.Factory,
		dir:       opts.Monitors,
		store:     opts.Settings,
		pool:      opts.Pool,
		copyImg:   opts.Copy,
		started:   time.Now(),
		view:      render.DefaultView(),
		toolbar:   true,
		panel:     true,
		panelText: WaitingText,
		sizeMode:  settings.SizeFixed,
	}
	m.publish()
	return m
}

// NextSeq hands out increasing sequence numbers for payloads.
func (m *Manager) NextSeq() uint64 { return m.seq.Add(1) }

// guard runs fn and logs instead of propagating a panic.
func (m *Manager) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("window: %s panicked: %v", name, r)
		}
	}()
	fn()
}

// do posts fn to the UI thread inside a guard.
func (m *Manager) do(name string, fn func()) {
	m.post(func() {
		m.guard(name, fn)
		m.publish()
	})
}

// EnsureCreated creates the window on first use. Later calls are no-ops; a
// failed creation leaves the manager Uninitialized and the next call retries.
func (m *Manager) EnsureCreated(rec settings.Record) {
	m.createMu.Lock()
	if m.createRequested {
		m.createMu.Unlock()
		return
	}
	m.createRequested = true
	m.createMu.Unlock()
	m.do("create", func() { m.create(rec) })
}

func (m *Manager) create(rec settings.Record) {
	if m.surface != nil {
		return
	}
	ok := false
	defer func() {
		if !ok {
			m.createMu.Lock()
			m.createRequested = false
			m.createMu.Unlock()
		}
	}()
	if m.factory == nil {
		log.Printf("window: no surface factory configured")
		return
	}
	rec = rec.Normalize()
	rect, mon := monitor.Placement(rec, m.dir)
	s, err := m.factory(m.handlers())
	if err != nil {
		log.Printf("window: create failed: %v", err)
		return
	}
	if s == nil {
		log.Printf("window: create returned no surface")
		return
	}
	m.surface = s
	m.state = Normal
	m.toolbar = rec.ShowToolbar
	m.sizeMode = rec.WindowSizeMode
	s.SetToolbarVisible(m.toolbar)
	s.SetPanelVisible(m.panel)
	s.SetPanelText(m.panelText)
	s.SetSizeMode(m.sizeMode)
	if err := s.SetGeometry(rect); err != nil {
		log.Printf("window: initial placement on monitor %d failed: %v", mon.Index, err)
	}
	if err := s.Show(); err != nil {
		log.Printf("window: show failed: %v", err)
	}
	if m.current != nil {
		m.present(m.current)
	}
	log.Printf("window: created %dx%d at %d,%d on monitor %d", rect.Width, rect.Height, rect.X, rect.Y, mon.Index)
	ok = true
}

// UpdateImage replaces the pending image. Bursts coalesce to the newest.
func (m *Manager) UpdateImage(p *payload.Payload) {
	m.received.Add(1)
	replaced, schedule := m.images.put(p)
	if replaced {
		m.coalesced.Add(1)
	}
	if schedule {
		m.do("image", m.drainImage)
	}
}

func (m *Manager) drainImage() {
	p, ok := m.images.take()
	if !ok {
		return
	}
	if !p.Valid() {
		m.renderErrs.Add(1)
		log.Printf("window: ignoring invalid image payload, keeping current display")
		return
	}
	if m.surface == nil {
		m.current = p
		return
	}
	m.present(p)
}

func (m *Manager) present(p *payload.Payload) {
	m.view = render.ClampPan(p.Size(), m.surface.Viewport(), m.view)
	if err := m.surface.Present(p, m.view); err != nil {
		m.renderErrs.Add(1)
		log.Printf("window: render of image %d failed: %v", p.Seq, err)
		return
	}
	// the previous payload becomes garbage once it is no longer displayed
	m.current = p
	m.rendered.Add(1)
}

// SetText replaces the pending panel text.
func (m *Manager) SetText(text string) {
	m.textUpdates.Add(1)
	if _, schedule := m.texts.put(text); schedule {
		m.do("text", m.drainText)
	}
}

func (m *Manager) drainText() {
	text, ok := m.texts.take()
	if !ok {
		return
	}
	m.panelText = text
	if m.surface != nil {
		m.surface.SetPanelText(text)
	}
}

// RequestClose minimizes the window, falling back to hiding it. The window
// is never destroyed.
func (m *Manager) RequestClose() { m.do("close", m.closeWindow) }

func (m *Manager) closeWindow() {
	if m.surface == nil {
		return
	}
	if m.state != Minimized {
		m.wasFullscreen = m.state == Fullscreen
		m.persistPosition()
	}
	if err := safeCall(m.surface.Minimize); err != nil {
		log.Printf("window: minimize failed, hiding instead: %v", err)
		if err := safeCall(m.surface.Hide); err != nil {
			log.Printf("window: hide failed: %v", err)
		}
	}
	m.state = Minimized
}

func (m *Manager) persistPosition() {
	if m.store == nil {
		return
	}
	geom := m.savedGeom
	if m.state != Fullscreen {
		g, err := m.surface.Geometry()
		if err != nil {
			log.Printf("window: could not read position: %v", err)
			geom = monitor.Rect{}
		} else {
			geom = g
		}
	}
	toolbar, mode := m.toolbar, m.sizeMode
	m.store.Update(func(r *settings.Record) {
		if !geom.Empty() {
			*r = r.WithPosition(geom.X, geom.Y)
		}
		r.ShowToolbar = toolbar
		r.WindowSizeMode = mode
	})
}

// Restore shows and raises the window, keeping zoom, pan and panel state.
func (m *Manager) Restore() { m.do("restore", m.restore) }

func (m *Manager) restore() {
	if m.surface == nil {
		log.Printf("window: restore requested before a window exists")
		return
	}
	if err := safeCall(m.surface.Show); err != nil {
		log.Printf("window: show failed: %v", err)
	}
	if err := safeCall(m.surface.Raise); err != nil {
		log.Printf("window: raise failed: %v", err)
	}
	if m.state != Minimized {
		return
	}
	m.state = Normal
	if m.wasFullscreen {
		m.wasFullscreen = false
		if err := m.enterFullscreenOn(m.fsMonitor); err != nil {
			log.Printf("window: could not return to fullscreen: %v", err)
			m.leaveFullscreen()
		}
	}
}

// ToggleFullscreen enters borderless fullscreen on the monitor the window is
// on, or leaves it restoring the previous geometry.
func (m *Manager) ToggleFullscreen() { m.do("fullscreen", m.toggleFullscreen) }

func (m *Manager) toggleFullscreen() {
	switch m.state {
	case Fullscreen:
		m.leaveFullscreen()
	case Normal:
		geom, err := m.surface.Geometry()
		if err != nil {
			log.Printf("window: fullscreen skipped, geometry unavailable: %v", err)
			return
		}
		mon := monitor.Locate(geom, m.dir.List())
		m.savedGeom = geom
		if err := m.enterFullscreenOn(mon); err != nil {
			log.Printf("window: fullscreen failed: %v", err)
			return
		}
	default:
		log.Printf("window: fullscreen ignored in state %s", m.state)
	}
}

func (m *Manager) enterFullscreenOn(mon monitor.Descriptor) error {
	if err := safeCall(func() error { return m.surface.SetBorderless(true) }); err != nil {
		return err
	}
	if err := safeCall(func() error { return m.surface.SetGeometry(mon.Bounds()) }); err != nil {
		_ = safeCall(func() error { return m.surface.SetBorderless(false) })
		return err
	}
	m.fsMonitor = mon
	m.state = Fullscreen
	return nil
}

func (m *Manager) leaveFullscreen() {
	if err := safeCall(func() error { return m.surface.SetBorderless(false) }); err != nil {
		log.Printf("window: restoring decorations failed: %v", err)
	}
	if !m.savedGeom.Empty() {
		if err := safeCall(func() error { return m.surface.SetGeometry(m.savedGeom) }); err != nil {
			log.Printf("window: restoring geometry failed: %v", err)
		}
	}
	m.state = Normal
}

// SetZoom sets the zoom factor, clamped to the supported range.
func (m *Manager) SetZoom(f float64) {
	m.do("zoom", func() {
		m.view.OneToOne = false
		m.view.Zoom = render.ClampZoom(f)
		m.applyView()
	})
}

// ZoomIn zooms in by one step.
func (m *Manager) ZoomIn() { m.do("zoom-in", m.zoomIn) }

// ZoomOut zooms out by one step.
func (m *Manager) ZoomOut() { m.do("zoom-out", m.zoomOut) }

// Pan moves the image by dx, dy viewport pixels.
func (m *Manager) Pan(dx, dy float64) { m.do("pan", func() { m.pan(dx, dy) }) }

// ResetView returns to fit-to-window with no pan.
func (m *Manager) ResetView() { m.do("reset", m.resetView) }

// OneToOne shows the image at its native size, centred.
func (m *Manager) OneToOne() { m.do("one-to-one", m.oneToOne) }

// ToggleToolbar shows or hides the toolbar.
func (m *Manager) ToggleToolbar() { m.do("toolbar", m.toggleToolbar) }

// TogglePanel shows or hides the side panel.
func (m *Manager) TogglePanel() { m.do("panel", m.togglePanel) }

func (m *Manager) zoomIn() {
	m.view.OneToOne = false
	m.view.Zoom = render.ClampZoom(m.view.Zoom * render.ZoomStep)
	m.applyView()
}

func (m *Manager) zoomOut() {
	m.view.OneToOne = false
	m.view.Zoom = render.ClampZoom(m.view.Zoom / render.ZoomStep)
	m.applyView()
}

func (m *Manager) pan(dx, dy float64) {
	m.view.PanX += dx
	m.view.PanY += dy
	m.applyView()
}

func (m *Manager) resetView() {
	m.view = render.DefaultView()
	m.applyView()
}

func (m *Manager) oneToOne() {
	m.view.OneToOne = true
	m.view.PanX, m.view.PanY = 0, 0
	m.applyView()
}

func (m *Manager) toggleToolbar() {
	m.toolbar = !m.toolbar
	if m.surface != nil {
		m.surface.SetToolbarVisible(m.toolbar)
	}
}

func (m *Manager) togglePanel() {
	m.panel = !m.panel
	if m.surface != nil {
		m.surface.SetPanelVisible(m.panel)
	}
}

func (m *Manager) applyView() {
	if m.surface == nil {
		return
	}
	if m.current.Valid() {
		m.view = render.ClampPan(m.current.Size(), m.surface.Viewport(), m.view)
	}
	m.surface.SetView(m.view)
}

// ApplySettings makes toolbar and size mode changes take effect live.
func (m *Manager) ApplySettings(rec settings.Record) {
	m.do("settings", func() { m.applySettings(rec.Normalize()) })
}

func (m *Manager) applySettings(rec settings.Record) {
	if m.surface == nil {
		return
	}
	if rec.ShowToolbar != m.toolbar {
		m.toolbar = rec.ShowToolbar
		m.surface.SetToolbarVisible(m.toolbar)
	}
	if rec.WindowSizeMode != m.sizeMode || rec.WindowSizeMode == settings.SizeFixed {
		m.resize(rec.WindowSizeMode, rec.WindowWidth, rec.WindowHeight)
	}
}

// resize applies a size mode on the monitor the window is currently on,
// keeping the window's position when it still fits.
func (m *Manager) resize(mode string, width, height int) {
	m.sizeMode = mode
	m.surface.SetSizeMode(mode)
	if m.state != Normal {
		return
	}
	cur, err := m.surface.Geometry()
	if err != nil {
		log.Printf("window: resize skipped, geometry unavailable: %v", err)
		return
	}
	mon := monitor.Locate(cur, m.dir.List())
	next := monitor.Geometry(mode, width, height, mon)
	if mode == settings.SizeFixed {
		next.X, next.Y = cur.X, cur.Y
	}
	if err := m.surface.SetGeometry(next); err != nil {
		log.Printf("window: resize failed: %v", err)
	}
}

func (m *Manager) selectSizeMode(mode string) {
	rec := settings.Defaults()
	if m.store != nil {
		rec = m.store.Get()
	}
	if w, h, ok := parsePreset(mode); ok {
		rec.WindowSizeMode = settings.SizeFixed
		rec.WindowWidth, rec.WindowHeight = w, h
	} else {
		rec.WindowSizeMode = mode
	}
	rec = rec.Normalize()
	m.resize(rec.WindowSizeMode, rec.WindowWidth, rec.WindowHeight)
	if m.store != nil {
		m.store.Replace(rec)
	}
}

// SaveCurrentImage encodes the displayed image to path on the worker pool.
// The format comes from the extension, else from the saved settings. It
// must not be called from the UI thread.
func (m *Manager) SaveCurrentImage(ctx context.Context, path string) error {
	return m.await(ctx, func(done func(error)) { m.saveTo(path, done) })
}

// CopyToClipboard places the displayed image on the clipboard. It must not
// be called from the UI thread.
func (m *Manager) CopyToClipboard(ctx context.Context) error {
	return m.await(ctx, m.copyCurrent)
}

func (m *Manager) await(ctx context.Context, start func(done func(error))) error {
	ch := make(chan error, 1)
	m.do("await", func() { start(func(err error) { ch <- err }) })
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) saveTo(path string, done func(error)) {
	if !m.current.Valid() {
		done(payload.ErrNoImage)
		return
	}
	rec := settings.Defaults()
	if m.store != nil {
		rec = m.store.Get()
	}
	img := m.current.Image
	format := payload.FormatForPath(path, rec.SaveFormat)
	m.submit("save", func(ctx context.Context) error {
		return writeImageFile(path, img, format, rec.JPEGQuality)
	}, done)
}

func (m *Manager) copyCurrent(done func(error)) {
	if !m.current.Valid() {
		done(payload.ErrNoImage)
		return
	}
	img := m.current.Image
	m.submit("copy", func(ctx context.Context) error { return m.copyImg(img) }, done)
}

func (m *Manager) submit(name string, task worker.Task, done func(error)) {
	if m.pool == nil {
		go func() { done(task(context.Background())) }()
		return
	}
	if !m.pool.Submit(context.Background(), name, task, done) {
		done(ErrBusy)
	}
}

// Ping round-trips through the UI thread. The watchdog uses it to detect a
// stalled event loop.
func (m *Manager) Ping(ctx context.Context) error {
	ch := make(chan struct{})
	m.post(func() { close(ch) })
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
