package window

import (
	"time"

	"watchpoint/src/render"
)

// Status is a point-in-time view of the manager for health reporting.
type Status struct {
	State            State       `json:"state"`
	Running          bool        `json:"running"`
	Minimized        bool        `json:"minimized"`
	View             render.View `json:"view"`
	ToolbarVisible   bool        `json:"toolbar_visible"`
	PanelVisible     bool        `json:"panel_visible"`
	SizeMode         string      `json:"size_mode"`
	FullscreenOn     int         `json:"fullscreen_monitor"`
	ImageWidth       int         `json:"image_width"`
	ImageHeight      int         `json:"image_height"`
	LastSeq          uint64      `json:"last_seq"`
	UpdatesReceived  uint64      `json:"updates_received"`
	UpdatesCoalesced uint64      `json:"updates_coalesced"`
	Rendered         uint64      `json:"rendered"`
	RenderErrors     uint64      `json:"render_errors"`
	TextUpdates      uint64      `json:"text_updates"`
	UptimeSeconds    float64     `json:"uptime_seconds"`
}

type uiSnapshot struct {
	state     State
	view      render.View
	toolbar   bool
	panel     bool
	sizeMode  string
	fsMonitor int
	imgW      int
	imgH      int
	lastSeq   uint64
}

// publish copies UI-thread state for readers on other goroutines.
func (m *Manager) publish() {
	s := uiSnapshot{
		state:     m.state,
		view:      m.view,
		toolbar:   m.toolbar,
		panel:     m.panel,
		sizeMode:  m.sizeMode,
		fsMonitor: -1,
	}
	if m.state == Fullscreen || (m.state == Minimized && m.wasFullscreen) {
		s.fsMonitor = m.fsMonitor.Index
	}
	if m.current.Valid() {
		size := m.current.Size()
		s.imgW, s.imgH = size.X, size.Y
		s.lastSeq = m.current.Seq
	}
	m.statusMu.Lock()
	m.snapshot = s
	m.statusMu.Unlock()
}

// Status returns the latest published state and counters.
func (m *Manager) Status() Status {
	m.statusMu.Lock()
	s := m.snapshot
	m.statusMu.Unlock()
	return Status{
		State:            s.state,
		Running:          s.state != Uninitialized,
		Minimized:        s.state == Minimized,
		View:             s.view,
		ToolbarVisible:   s.toolbar,
		PanelVisible:     s.panel,
		SizeMode:         s.sizeMode,
		FullscreenOn:     s.fsMonitor,
		ImageWidth:       s.imgW,
		ImageHeight:      s.imgH,
		LastSeq:          s.lastSeq,
		UpdatesReceived:  m.received.Load(),
		UpdatesCoalesced: m.coalesced.Load(),
		Rendered:         m.rendered.Load(),
		RenderErrors:     m.renderErrs.Load(),
		TextUpdates:      m.textUpdates.Load(),
		UptimeSeconds:    time.Since(m.started).Seconds(),
	}
}
