package gui

import (
	"errors"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver"

	"watchpoint/src/monitor"
)

// ErrUnsupported is returned when the platform window cannot be reached.
var ErrUnsupported = errors.New("native window operation unsupported on this platform")

// runNative hands the platform window context to fn. It must be called on
// the UI thread.
func runNative(w fyne.Window, fn func(ctx any) error) (err error) {
	nw, ok := w.(driver.NativeWindow)
	if !ok {
		return ErrUnsupported
	}
	err = ErrUnsupported
	nw.RunNative(func(ctx any) {
		err = fn(ctx)
	})
	return err
}

func nativeGeometry(w fyne.Window) (monitor.Rect, error) {
	var r monitor.Rect
	err := runNative(w, func(ctx any) error {
		var err error
		r, err = platformGeometry(ctx)
		return err
	})
	return r, err
}

func nativeSetGeometry(w fyne.Window, r monitor.Rect) error {
	return runNative(w, func(ctx any) error { return platformSetGeometry(ctx, r) })
}

func nativeSetBorderless(w fyne.Window, on bool) error {
	return runNative(w, func(ctx any) error { return platformSetBorderless(ctx, on) })
}

func nativeMinimize(w fyne.Window) error {
	return runNative(w, platformMinimize)
}

func nativeRaise(w fyne.Window) error {
	return runNative(w, platformRaise)
}
