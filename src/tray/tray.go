package tray

import (
	"log"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
)

// Actions are the tray menu callbacks. They run on the UI thread.
type Actions struct {
	Restore    func()
	Fullscreen func()
	Reset      func()
	Quit       func()
}

var (
	mu         sync.Mutex
	aboutExtra string
	installed  fyne.App
	actions    Actions
)

// SetAboutExtra sets additional text shown as a disabled menu line (e.g. port info).
func SetAboutExtra(s string) {
	mu.Lock()
	aboutExtra = s
	app := installed
	mu.Unlock()
	if app != nil {
		fyne.Do(func() { install(app) })
	}
}

// Install adds the tray icon and menu when the platform supports one.
// It reports whether a tray is available.
func Install(app fyne.App, a Actions) bool {
	desk, ok := app.(desktop.App)
	if !ok {
		log.Printf("tray: system tray not supported by this driver")
		return false
	}
	mu.Lock()
	installed = app
	actions = a
	mu.Unlock()
	desk.SetSystemTrayIcon(Icon)
	install(app)
	return true
}

func install(app fyne.App) {
	desk, ok := app.(desktop.App)
	if !ok {
		return
	}
	desk.SetSystemTrayMenu(buildMenu())
}

func buildMenu() *fyne.Menu {
	mu.Lock()
	a, extra := actions, aboutExtra
	mu.Unlock()
	items := []*fyne.MenuItem{
		fyne.NewMenuItem("Restore Preview", call(a.Restore)),
		fyne.NewMenuItem("Toggle Fullscreen", call(a.Fullscreen)),
		fyne.NewMenuItem("Reset View", call(a.Reset)),
	}
	if extra != "" {
		info := fyne.NewMenuItem(extra, nil)
		info.Disabled = true
		items = append(items, fyne.NewMenuItemSeparator(), info)
	}
	quit := fyne.NewMenuItem("Quit", call(a.Quit))
	quit.IsQuit = true
	items = append(items, fyne.NewMenuItemSeparator(), quit)
	return fyne.NewMenu("WatchPoint", items...)
}

func call(fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("tray: menu action panicked: %v", r)
			}
		}()
		if fn != nil {
			fn()
		}
	}
}
