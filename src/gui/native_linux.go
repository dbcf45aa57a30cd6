//go:build linux

package gui

import (
	"fmt"
	"sync"

	"fyne.io/fyne/v2/driver"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/motif"
	"github.com/BurntSushi/xgbutil/xwindow"

	"watchpoint/src/monitor"
)

// iconicState is the ICCCM WM_CHANGE_STATE value that asks for iconify.
const iconicState = 3

var (
	xOnce sync.Once
	xConn *xgbutil.XUtil
	xErr  error
)

func x11Conn() (*xgbutil.XUtil, error) {
	xOnce.Do(func() {
		xConn, xErr = xgbutil.NewConn()
	})
	return xConn, xErr
}

func x11Window(ctx any) (*xgbutil.XUtil, xproto.Window, error) {
	c, ok := ctx.(driver.X11WindowContext)
	if !ok || c.WindowHandle == 0 {
		return nil, 0, ErrUnsupported
	}
	xu, err := x11Conn()
	if err != nil {
		return nil, 0, fmt.Errorf("x11 connect: %w", err)
	}
	return xu, xproto.Window(c.WindowHandle), nil
}

func platformGeometry(ctx any) (monitor.Rect, error) {
	xu, id, err := x11Window(ctx)
	if err != nil {
		return monitor.Rect{}, err
	}
	win := xwindow.New(xu, id)
	frame, err := win.DecorGeometry()
	if err != nil {
		return monitor.Rect{}, fmt.Errorf("x11 frame geometry: %w", err)
	}
	client, err := win.Geometry()
	if err != nil {
		return monitor.Rect{}, fmt.Errorf("x11 geometry: %w", err)
	}
	return monitor.Rect{X: frame.X(), Y: frame.Y(), Width: client.Width(), Height: client.Height()}, nil
}

func platformSetGeometry(ctx any, r monitor.Rect) error {
	xu, id, err := x11Window(ctx)
	if err != nil {
		return err
	}
	if err := ewmh.MoveresizeWindow(xu, id, r.X, r.Y, r.Width, r.Height); err != nil {
		// window managers without EWMH support get a direct configure
		xwindow.New(xu, id).MoveResize(r.X, r.Y, r.Width, r.Height)
	}
	return nil
}

func platformSetBorderless(ctx any, on bool) error {
	xu, id, err := x11Window(ctx)
	if err != nil {
		return err
	}
	hints := &motif.Hints{Flags: motif.HintDecorations, Decoration: motif.DecorationAll}
	if on {
		hints.Decoration = motif.DecorationNone
	}
	if err := motif.WmHintsSet(xu, id, hints); err != nil {
		return fmt.Errorf("x11 decorations: %w", err)
	}
	return nil
}

func platformMinimize(ctx any) error {
	xu, id, err := x11Window(ctx)
	if err != nil {
		return err
	}
	reply, err := xproto.InternAtom(xu.Conn(), false, uint16(len("WM_CHANGE_STATE")), "WM_CHANGE_STATE").Reply()
	if err != nil {
		return fmt.Errorf("x11 intern WM_CHANGE_STATE: %w", err)
	}
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: id,
		Type:   reply.Atom,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{iconicState, 0, 0, 0, 0}),
	}
	return xproto.SendEventChecked(
		xu.Conn(),
		false,
		xu.RootWin(),
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
		string(ev.Bytes()),
	).Check()
}

func platformRaise(ctx any) error {
	xu, id, err := x11Window(ctx)
	if err != nil {
		return err
	}
	return ewmh.ActiveWindowReq(xu, id)
}
