package runtimeinit

import (
	"fmt"
	"log"

	"watchpoint/src/clipboard"
	"watchpoint/src/config"
	"watchpoint/src/logutil"
)

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(bool)
	// DebugOverride forces debug mode on for this session.
	DebugOverride bool
}

// Runtime is what the resident needs after bootstrap.
type Runtime struct {
	Config *config.Config
	Debug  *logutil.Debug
}

func Bootstrap(opts Options) (*Runtime, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}

	debug := logutil.LoadDebug(cfg.DebugConfigPath(logutil.DebugConfigFile), cfg.DebugDir, cfg.Debug)
	if opts.DebugOverride && !debug.Enabled() {
		if err := debug.SetEnabled(true); err != nil {
			log.Printf("runtimeinit: %v", err)
		}
	}

	// Copy is optional; the preview still works without a clipboard.
	if err := clipboard.Init(); err != nil {
		log.Printf("Clipboard unavailable, copy will fail: %v", err)
	}

	log.Printf("Settings file: %s", cfg.SettingsFile)
	log.Printf("Restore hotkey: %s", cfg.Hotkey)
	log.Printf("Port range: %d-%d", cfg.PortStart, cfg.PortEnd)
	log.Printf("Allowed origins: %v, save dir: %s", cfg.AllowedOrigins, cfg.SaveDir)

	return &Runtime{Config: cfg, Debug: debug}, nil
}
