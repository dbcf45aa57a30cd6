package window

import (
	"log"
	"strconv"
	"strings"

	"watchpoint/src/settings"
)

// SizePresets are the size choices offered in the toolbar.
func SizePresets() []string {
	return []string{"800x600", "1024x768", "1920x1080",
		settings.SizeHalfVertical, settings.SizeHalfHorizontal, settings.SizeQuarter}
}

func parsePreset(mode string) (int, int, bool) {
	w, h, ok := strings.Cut(mode, "x")
	if !ok {
		return 0, 0, false
	}
	wi, err1 := strconv.Atoi(w)
	hi, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return wi, hi, true
}

// handlers builds the guarded callbacks handed to the surface.
func (m *Manager) handlers() Handlers {
	return Handlers{
		Close: func() { m.inline("close", m.closeWindow) },
		Key:   func(name string) { m.inline("key", func() { m.handleKey(name) }) },
		Scroll: func(delta float64) {
			m.inline("scroll", func() {
				if delta > 0 {
					m.zoomIn()
				} else if delta < 0 {
					m.zoomOut()
				}
			})
		},
		Drag: func(dx, dy float64) { m.inline("drag", func() { m.pan(dx, dy) }) },
		SaveTo: func(path string, done func(error)) {
			m.inline("save", func() { m.saveTo(path, done) })
		},
		Copy:     func(done func(error)) { m.inline("copy", func() { m.copyCurrent(done) }) },
		SizeMode: func(mode string) { m.inline("size", func() { m.selectSizeMode(mode) }) },
		Settings: func() settings.Record {
			if m.store == nil {
				return settings.Defaults()
			}
			return m.store.Get()
		},
		ApplySettings: func(rec settings.Record) {
			m.inline("settings", func() {
				rec = rec.Normalize()
				if m.store != nil {
					m.store.Replace(rec)
				}
				m.applySettings(rec)
			})
		},
		Fullscreen: func() { m.inline("fullscreen", m.toggleFullscreen) },
	}
}

// inline runs a handler already on the UI thread.
func (m *Manager) inline(name string, fn func()) {
	m.guard(name, fn)
	m.publish()
}

// handleKey maps key names to view actions.
func (m *Manager) handleKey(name string) {
	switch name {
	case "r", "R":
		m.resetView()
	case "t", "T":
		m.toggleToolbar()
	case "p", "P":
		m.togglePanel()
	case "1":
		m.oneToOne()
	case "+", "=":
		m.zoomIn()
	case "-", "_":
		m.zoomOut()
	case "f", "F", "F11":
		m.toggleFullscreen()
	case "Escape":
		if m.state == Fullscreen {
			m.leaveFullscreen()
		}
	default:
		log.Printf("window: unbound key %q", name)
	}
}
