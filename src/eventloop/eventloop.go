// Package eventloop is the resident's single coordinator goroutine.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"watchpoint/src/hotkey"
	"watchpoint/src/window"
)

const (
	defaultWatchdog    = time.Second
	defaultPingTimeout = 2 * time.Second
	defaultPruneEvery  = 10 * time.Minute
	defaultPruneAge    = time.Hour
	// unhealthy pings in a row before a dump is written
	stallThreshold = 3
	// watchdog ticks between health log lines
	healthLogEvery = 30
)

// Window is what the loop needs from the window manager.
type Window interface {
	Restore()
	Ping(ctx context.Context) error
	Status() window.Status
}

// Pruner removes stale preview files.
type Pruner interface {
	Prune(maxAge time.Duration) (int, error)
}

// Dumper writes a debug dump when debug mode is on.
type Dumper interface {
	AutoDump(reason string, state any)
}

// Options wires a Loop. Zero durations use the defaults.
type Options struct {
	Window       Window
	Pruner       Pruner
	Dumper       Dumper
	ServerErrors <-chan error
	Watchdog     time.Duration
	PingTimeout  time.Duration
	PruneEvery   time.Duration
	PruneAge     time.Duration
}

// Loop coordinates hotkey restores, the UI watchdog, temp file pruning and
// server failures.
type Loop struct {
	opts      Options
	hotkeyCh  chan struct{}
	pings     chan error
	pinging   bool
	failures  int
	ticks     int
	lastState window.State
}

// New creates a loop.
func New(opts Options) *Loop {
	if opts.Watchdog <= 0 {
		opts.Watchdog = defaultWatchdog
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = defaultPingTimeout
	}
	if opts.PruneEvery <= 0 {
		opts.PruneEvery = defaultPruneEvery
	}
	if opts.PruneAge <= 0 {
		opts.PruneAge = defaultPruneAge
	}
	return &Loop{
		opts:     opts,
		hotkeyCh: make(chan struct{}, 4),
		pings:    make(chan error, 1),
	}
}

// StartHotkey registers a global hotkey that restores the window.
func (l *Loop) StartHotkey(ctx context.Context, combo string) error {
	if combo == "" {
		return nil
	}
	return hotkey.Listen(ctx, combo, l.TriggerRestore)
}

// TriggerRestore asks the loop to restore the window. It never blocks.
func (l *Loop) TriggerRestore() {
	select {
	case l.hotkeyCh <- struct{}{}:
	default:
	}
}

// Run processes events until ctx is cancelled or the server fails.
func (l *Loop) Run(ctx context.Context) error {
	watchdog := time.NewTicker(l.opts.Watchdog)
	defer watchdog.Stop()
	prune := time.NewTicker(l.opts.PruneEvery)
	defer prune.Stop()
	serverErrs := l.opts.ServerErrors

	l.prune()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.hotkeyCh:
			l.handleHotkey()
		case <-watchdog.C:
			l.handleTick(ctx)
		case err := <-l.pings:
			l.handlePing(err)
		case <-prune.C:
			l.prune()
		case err, ok := <-serverErrs:
			if !ok {
				serverErrs = nil
				continue
			}
			l.dump("server failure")
			return fmt.Errorf("server: %w", err)
		}
	}
}

func (l *Loop) handleHotkey() {
	if l.opts.Window == nil {
		return
	}
	log.Printf("handleHotkey: restoring preview window")
	l.opts.Window.Restore()
}

func (l *Loop) handleTick(ctx context.Context) {
	if l.opts.Window == nil {
		return
	}
	l.ticks++
	st := l.opts.Window.Status()
	if st.State != l.lastState {
		log.Printf("watchdog: window %s -> %s", l.lastState, st.State)
		l.lastState = st.State
	}
	if l.ticks%healthLogEvery == 0 {
		log.Printf("health: state=%s received=%d coalesced=%d rendered=%d render_errors=%d",
			st.State, st.UpdatesReceived, st.UpdatesCoalesced, st.Rendered, st.RenderErrors)
	}
	if st.State == window.Uninitialized || l.pinging {
		return
	}
	l.pinging = true
	go func() {
		pctx, cancel := context.WithTimeout(ctx, l.opts.PingTimeout)
		defer cancel()
		l.pings <- l.opts.Window.Ping(pctx)
	}()
}

func (l *Loop) handlePing(err error) {
	l.pinging = false
	if err == nil {
		if l.failures > 0 {
			log.Printf("watchdog: UI thread responsive again after %d missed checks", l.failures)
		}
		l.failures = 0
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	l.failures++
	log.Printf("watchdog: UI thread check failed (%d): %v", l.failures, err)
	if l.failures == stallThreshold {
		l.dump("ui thread unresponsive")
	}
}

func (l *Loop) prune() {
	if l.opts.Pruner == nil {
		return
	}
	n, err := l.opts.Pruner.Prune(l.opts.PruneAge)
	if err != nil {
		log.Printf("prune: %v", err)
		return
	}
	if n > 0 {
		log.Printf("prune: removed %d stale previews", n)
	}
}

func (l *Loop) dump(reason string) {
	if l.opts.Dumper == nil {
		return
	}
	var state any
	if l.opts.Window != nil {
		state = l.opts.Window.Status()
	}
	l.opts.Dumper.AutoDump(reason, state)
}
