//go:build !linux && !windows

package gui

import "watchpoint/src/monitor"

func platformGeometry(any) (monitor.Rect, error)    { return monitor.Rect{}, ErrUnsupported }
func platformSetGeometry(any, monitor.Rect) error    { return ErrUnsupported }
func platformSetBorderless(any, bool) error          { return ErrUnsupported }
func platformMinimize(any) error                     { return ErrUnsupported }
func platformRaise(any) error                        { return ErrUnsupported }
