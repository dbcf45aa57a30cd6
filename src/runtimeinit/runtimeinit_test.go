package runtimeinit

import (
	"os"
	"path/filepath"
	"testing"

	"watchpoint/src/config"
	"watchpoint/src/logutil"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("APPDATA", dir)
	t.Setenv(config.EnvFileEnvVar, "")
	t.Setenv(config.DebugEnvVar, "")
	t.Setenv(config.DebugDirEnvVar, filepath.Join(dir, "dumps"))
	return dir
}

func TestBootstrap(t *testing.T) {
	dir := isolate(t)
	t.Setenv("ENABLE_FILE_LOGGING", "true")

	var gotLogging *bool
	rt, err := Bootstrap(Options{
		LoadOptions: config.LoadOptions{
			SettingsFileOverride: filepath.Join(dir, "s.json"),
			HotkeyOverride:       "Ctrl+Shift+P",
		},
		SetupLogging: func(on bool) { gotLogging = &on },
	})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if gotLogging == nil || !*gotLogging {
		t.Error("Expected file logging to be set up from ENABLE_FILE_LOGGING")
	}
	if rt.Config.SettingsFile != filepath.Join(dir, "s.json") {
		t.Errorf("Expected settings override, got %s", rt.Config.SettingsFile)
	}
	if rt.Config.Hotkey != "Ctrl+Shift+P" {
		t.Errorf("Expected hotkey override, got %s", rt.Config.Hotkey)
	}
	if rt.Debug == nil || rt.Debug.Enabled() {
		t.Error("Expected debug mode to start disabled")
	}
}

func TestBootstrapDebugOverridePersists(t *testing.T) {
	isolate(t)
	rt, err := Bootstrap(Options{DebugOverride: true})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if !rt.Debug.Enabled() {
		t.Fatal("Expected debug override to enable debug mode")
	}
	path := rt.Config.DebugConfigPath(logutil.DebugConfigFile)
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected debug config at %s: %v", path, err)
	}
	if rt.Debug.Dir() != rt.Config.DebugDir {
		t.Errorf("Expected dump dir %s, got %s", rt.Config.DebugDir, rt.Debug.Dir())
	}
}
