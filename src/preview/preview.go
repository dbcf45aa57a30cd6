// Package preview is the pipeline-facing entry point. A Node receives every
// produced image, forwards it to the desktop window and the host preview
// channel as requested, and always hands its input back unchanged.
package preview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync/atomic"

	"watchpoint/src/overlay"
	"watchpoint/src/payload"
	"watchpoint/src/settings"
)

// Window is the part of the window manager the adapter drives.
type Window interface {
	EnsureCreated(rec settings.Record)
	UpdateImage(p *payload.Payload)
	SetText(text string)
	Restore()
	NextSeq() uint64
}

// Channel is the host's native preview channel.
type Channel interface {
	Emit(nodeID string, images []image.Image) ([]overlay.ImageRef, error)
}

// SettingsSource supplies the record used when the window is first created.
type SettingsSource interface {
	Get() settings.Record
}

// Input is one invocation of the preview node.
type Input struct {
	// Image is the decoded input. When nil, Data is decoded on demand.
	Image image.Image
	// Data is the encoded input as received from the host.
	Data            []byte
	FloatingPreview bool
	MonitorPreview  bool
	PanelText       string
	NodeID          string
	// Monitor overrides the configured monitor for window creation.
	Monitor *int
}

// Output is the pass-through result plus a report of the side effects.
type Output struct {
	Image  image.Image
	Data   []byte
	Images []overlay.ImageRef
	Errors []error
}

// Stats counts node activity since start.
type Stats struct {
	Calls      uint64 `json:"calls"`
	Forwarded  uint64 `json:"forwarded"`
	Suppressed uint64 `json:"suppressed"`
	Floating   uint64 `json:"floating"`
	Errors     uint64 `json:"errors"`
}

// Options wires a Node.
type Options struct {
	Window   Window
	Channel  Channel
	Settings SettingsSource
	// AfterProcess runs after every invocation, e.g. to write debug dumps.
	AfterProcess func(in Input, out Output)
}

// Node is the preview node adapter. It is safe for concurrent use.
type Node struct {
	opts Options

	calls      atomic.Uint64
	forwarded  atomic.Uint64
	suppressed atomic.Uint64
	floating   atomic.Uint64
	errs       atomic.Uint64
}

// New returns a Node.
func New(opts Options) *Node {
	return &Node{opts: opts}
}

// Process forwards in to the enabled previews and returns it unchanged. No
// failure of a side effect is returned to the caller; failures are logged
// and reported in Output.Errors.
func (n *Node) Process(ctx context.Context, in Input) Output {
	n.calls.Add(1)
	out := Output{Image: in.Image, Data: in.Data}

	if !in.MonitorPreview && !in.FloatingPreview {
		n.suppressed.Add(1)
		n.finish(in, out)
		return out
	}
	if err := ctx.Err(); err != nil {
		n.fail(&out, "process", err)
		n.finish(in, out)
		return out
	}

	img, err := n.decoded(in)
	if err != nil {
		n.fail(&out, "decode", err)
	}

	if in.MonitorPreview {
		n.step(&out, "monitor preview", func() error { return n.forward(in, img) })
	} else {
		// the open window keeps its last image
		n.suppressed.Add(1)
	}
	if in.FloatingPreview && img != nil {
		n.step(&out, "floating preview", func() error {
			refs, err := n.emit(in.NodeID, img)
			out.Images = refs
			return err
		})
	}
	n.finish(in, out)
	return out
}

func (n *Node) decoded(in Input) (image.Image, error) {
	if in.Image != nil {
		return in.Image, nil
	}
	if len(in.Data) == 0 {
		return nil, payload.ErrEmpty
	}
	p, err := payload.Decode(in.Data, in.NodeID, 0)
	if err != nil {
		return nil, err
	}
	return p.Image, nil
}

func (n *Node) forward(in Input, img image.Image) error {
	w := n.opts.Window
	if w == nil {
		return errors.New("no window manager")
	}
	rec := settings.Defaults()
	if n.opts.Settings != nil {
		rec = n.opts.Settings.Get()
	}
	if in.Monitor != nil && *in.Monitor >= 0 {
		rec.MonitorIndex = *in.Monitor
	}
	w.EnsureCreated(rec)
	if img != nil {
		w.UpdateImage(payload.New(img, in.NodeID, w.NextSeq()))
		n.forwarded.Add(1)
	}
	if in.PanelText != "" {
		w.SetText(in.PanelText)
	}
	return nil
}

func (n *Node) emit(nodeID string, img image.Image) ([]overlay.ImageRef, error) {
	if n.opts.Channel == nil {
		return nil, errors.New("no preview channel")
	}
	refs, err := n.opts.Channel.Emit(nodeID, []image.Image{img})
	if err == nil {
		n.floating.Add(1)
	}
	return refs, err
}

// step runs fn with panics turned into errors.
func (n *Node) step(out *Output, name string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()
	if err != nil {
		n.fail(out, name, err)
	}
}

func (n *Node) fail(out *Output, name string, err error) {
	n.errs.Add(1)
	log.Printf("preview: %s failed: %v", name, err)
	out.Errors = append(out.Errors, fmt.Errorf("%s: %w", name, err))
}

func (n *Node) finish(in Input, out Output) {
	if n.opts.AfterProcess == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("preview: after-process hook panicked: %v", r)
		}
	}()
	n.opts.AfterProcess(in, out)
}

// Scout pushes text to the side panel without an image and returns it
// unchanged.
func (n *Node) Scout(text string) string {
	var out Output
	n.step(&out, "scout", func() error {
		if n.opts.Window == nil {
			return errors.New("no window manager")
		}
		n.opts.Window.SetText(text)
		return nil
	})
	return text
}

// RestoreWindow brings a minimized or hidden window back.
func (n *Node) RestoreWindow() error {
	var out Output
	n.step(&out, "restore", func() error {
		if n.opts.Window == nil {
			return errors.New("no window manager")
		}
		n.opts.Window.Restore()
		return nil
	})
	if len(out.Errors) > 0 {
		return out.Errors[0]
	}
	return nil
}

// Stats returns the activity counters.
func (n *Node) Stats() Stats {
	return Stats{
		Calls:      n.calls.Load(),
		Forwarded:  n.forwarded.Load(),
		Suppressed: n.suppressed.Load(),
		Floating:   n.floating.Load(),
		Errors:     n.errs.Load(),
	}
}
