package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"

	"watchpoint/src/api"
	"watchpoint/src/config"
	"watchpoint/src/eventloop"
	"watchpoint/src/gui"
	"watchpoint/src/logutil"
	"watchpoint/src/monitor"
	"watchpoint/src/overlay"
	"watchpoint/src/preview"
	"watchpoint/src/runtimeinit"
	"watchpoint/src/settings"
	"watchpoint/src/singleinstance"
	"watchpoint/src/tray"
	"watchpoint/src/window"
	"watchpoint/src/worker"
)

const (
	appID           = "io.watchpoint.preview"
	version         = "1.0.0"
	poolSize        = 2
	shutdownTimeout = 3 * time.Second
)

type mainOptions struct {
	settingsFile string
	hotkey       string
	debug        bool
}

func main() {
	// Ensure DPI awareness before creating any windows or querying metrics
	enableDPIAwareness()

	if err := runWithArgs(normalizeLegacyArgs(os.Args)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"watchpoint"}
	}
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "watchpoint",
		Short:         "Resident preview window for pipeline images",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResident(*opts)
		},
	}

	cmd.Flags().StringVar(&opts.settingsFile, "settings", "", "Path to the settings file (highest precedence)")
	cmd.Flags().StringVar(&opts.hotkey, "hotkey", "", "Global restore hotkey, e.g. Ctrl+Alt+W")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable persistent debug mode")

	return cmd
}

// normalizeLegacyArgs maps single-dash long flags to their GNU form.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	normalized := make([]string, len(args))
	copy(normalized, args)
	for i := 1; i < len(normalized); i++ {
		for _, name := range []string{"settings", "hotkey", "debug"} {
			arg := normalized[i]
			switch {
			case arg == "-"+name:
				normalized[i] = "--" + name
			case strings.HasPrefix(arg, "-"+name+"="):
				normalized[i] = "-" + arg
			}
		}
	}
	return normalized
}

func portRange(cfg *config.Config) singleinstance.Range {
	return singleinstance.Range{Start: cfg.PortStart, End: cfg.PortEnd}
}

func runResident(opts mainOptions) error {
	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions: config.LoadOptions{
			SettingsFileOverride: opts.settingsFile,
			HotkeyOverride:       opts.hotkey,
		},
		SetupLogging:  logutil.Setup,
		DebugOverride: opts.debug,
	})
	if err != nil {
		return err
	}
	cfg := rt.Config

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := app.NewWithID(appID)
	a.SetIcon(tray.Icon)

	store := settings.Open(cfg.SettingsFile)
	pool := worker.New(poolSize)
	defer pool.Close()
	monitors := monitor.NewDirectory(nil)
	for _, m := range monitors.List() {
		log.Printf("MONITOR: %d at %d,%d size %dx%d", m.Index, m.X, m.Y, m.Width, m.Height)
	}

	mgr := window.New(window.Options{
		Post:     fyne.Do,
		Factory:  gui.NewFactory(a),
		Monitors: monitors,
		Settings: store,
		Pool:     pool,
	})

	files := overlay.NewTempStore(cfg.TempDir)
	origins := api.NewOrigins(cfg.AllowedOrigins)
	hub := overlay.NewHub(origins.Allowed)
	node := preview.New(preview.Options{
		Window:   mgr,
		Channel:  &overlay.Channel{Store: files, Hub: hub},
		Settings: store,
		AfterProcess: func(in preview.Input, out preview.Output) {
			rt.Debug.AutoDump("watchpoint executed", mgr.Status())
		},
	})

	srv := api.NewServer(api.Options{
		Node:     node,
		Window:   mgr,
		Settings: store,
		Monitors: monitors,
		Files:    files,
		Debug:    rt.Debug,
		Events:   hub,
		Version:  version,
		Origins:  origins,
		SaveDir:  cfg.SaveDir,
	})

	inst := singleinstance.NewServer(portRange(cfg))
	if err := inst.Start(ctx, srv.Handler()); err != nil {
		if errors.Is(err, singleinstance.ErrAlreadyRunning) {
			fmt.Printf("WatchPoint is already running on port %d\n", cfg.PortStart)
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := inst.Shutdown(sctx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()
	log.Printf("Resident listening on 127.0.0.1:%d", inst.Port())
	tray.SetAboutExtra(fmt.Sprintf("Resident port: %d", inst.Port()))

	loop := eventloop.New(eventloop.Options{
		Window:       mgr,
		Pruner:       files,
		Dumper:       rt.Debug,
		ServerErrors: inst.Errors(),
	})
	if err := loop.StartHotkey(ctx, cfg.Hotkey); err != nil {
		log.Printf("Hotkey disabled: %v", err)
	}

	if !tray.Install(a, tray.Actions{
		Restore:    mgr.Restore,
		Fullscreen: mgr.ToggleFullscreen,
		Reset:      mgr.ResetView,
		Quit:       cancel,
	}) {
		log.Printf("System tray unavailable")
	}

	go func() {
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("event loop stopped: %v", err)
		}
		cancel()
		fyne.Do(a.Quit)
	}()

	log.Printf("WatchPoint %s initialized", version)
	a.Run()
	cancel()
	return nil
}
