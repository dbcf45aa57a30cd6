//go:build windows

package gui

import (
	"errors"

	"fyne.io/fyne/v2/driver"
	"github.com/lxn/win"

	"watchpoint/src/monitor"
)

func hwndOf(ctx any) (win.HWND, error) {
	c, ok := ctx.(driver.WindowsWindowContext)
	if !ok || c.HWND == 0 {
		return 0, ErrUnsupported
	}
	return win.HWND(c.HWND), nil
}

func platformGeometry(ctx any) (monitor.Rect, error) {
	hwnd, err := hwndOf(ctx)
	if err != nil {
		return monitor.Rect{}, err
	}
	var r win.RECT
	if !win.GetWindowRect(hwnd, &r) {
		return monitor.Rect{}, errors.New("GetWindowRect failed")
	}
	return monitor.Rect{
		X:      int(r.Left),
		Y:      int(r.Top),
		Width:  int(r.Right - r.Left),
		Height: int(r.Bottom - r.Top),
	}, nil
}

func platformSetGeometry(ctx any, r monitor.Rect) error {
	hwnd, err := hwndOf(ctx)
	if err != nil {
		return err
	}
	if !win.SetWindowPos(hwnd, win.HWND_TOP, int32(r.X), int32(r.Y), int32(r.Width), int32(r.Height), win.SWP_NOZORDER|win.SWP_NOACTIVATE) {
		return errors.New("SetWindowPos failed")
	}
	return nil
}

func platformSetBorderless(ctx any, on bool) error {
	hwnd, err := hwndOf(ctx)
	if err != nil {
		return err
	}
	const frame = win.WS_CAPTION | win.WS_THICKFRAME
	style := win.GetWindowLong(hwnd, win.GWL_STYLE)
	if on {
		style &^= frame
	} else {
		style |= frame
	}
	win.SetWindowLong(hwnd, win.GWL_STYLE, style)
	// apply the style change without moving the window
	win.SetWindowPos(hwnd, 0, 0, 0, 0, 0, win.SWP_FRAMECHANGED|win.SWP_NOMOVE|win.SWP_NOSIZE|win.SWP_NOZORDER|win.SWP_NOACTIVATE)
	return nil
}

func platformMinimize(ctx any) error {
	hwnd, err := hwndOf(ctx)
	if err != nil {
		return err
	}
	win.ShowWindow(hwnd, win.SW_MINIMIZE)
	if !win.IsIconic(hwnd) {
		return errors.New("window did not minimize")
	}
	return nil
}

func platformRaise(ctx any) error {
	hwnd, err := hwndOf(ctx)
	if err != nil {
		return err
	}
	if win.IsIconic(hwnd) {
		win.ShowWindow(hwnd, win.SW_RESTORE)
	}
	win.SetForegroundWindow(hwnd)
	return nil
}
