package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvFileEnvVar      = "WATCHPOINT_ENV"
	SettingsFileEnvVar = "WATCHPOINT_SETTINGS_FILE"
	TempDirEnvVar      = "WATCHPOINT_TEMP_DIR"
	PortStartEnvVar    = "WATCHPOINT_PORT_START"
	PortEndEnvVar      = "WATCHPOINT_PORT_END"
	DebugEnvVar        = "WATCHPOINT_DEBUG"
	DebugDirEnvVar     = "WATCHPOINT_DEBUG_DIR"
	OriginsEnvVar      = "WATCHPOINT_ALLOWED_ORIGINS"
	SaveDirEnvVar      = "WATCHPOINT_SAVE_DIR"

	DefaultSettingsFile = "watchpoint_settings.json"
	DefaultDebugDir     = "debug_logs"
	DefaultHotkey       = "Ctrl+Alt+W"
	DefaultPortStart    = 49600
	DefaultPortEnd      = 49650
	DefaultSaveDir      = "saved"

	// DefaultOrigins is the host's browser UI on its default port.
	DefaultOrigins = "http://127.0.0.1:8188,http://localhost:8188"
)

type LoadOptions struct {
	SettingsFileOverride string
	HotkeyOverride       string
}

type Config struct {
	SettingsFile      string
	TempDir           string
	PortStart         int
	PortEnd           int
	Hotkey            string
	EnableFileLogging bool
	Debug             bool
	DebugDir          string

	// AllowedOrigins are the browser origins accepted by the API.
	AllowedOrigins []string

	// SaveDir confines images saved through the API.
	SaveDir string

	// BaseDir holds the settings and debug config when paths are relative.
	BaseDir string
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, use WATCHPOINT_ENV env var as a path to a config file
	envPath := resolveEnvPath()
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	base := baseDir()
	start, end := resolvePortRange(os.Getenv(PortStartEnvVar), os.Getenv(PortEndEnvVar))

	cfg := &Config{
		SettingsFile:      resolvePath(base, firstNonEmpty(opts.SettingsFileOverride, os.Getenv(SettingsFileEnvVar), DefaultSettingsFile)),
		TempDir:           strings.TrimSpace(os.Getenv(TempDirEnvVar)),
		PortStart:         start,
		PortEnd:           end,
		Hotkey:            firstNonEmpty(opts.HotkeyOverride, os.Getenv("RESTORE_HOTKEY"), DefaultHotkey),
		EnableFileLogging: parseBool(os.Getenv("ENABLE_FILE_LOGGING")),
		Debug:             parseBool(os.Getenv(DebugEnvVar)),
		DebugDir:          resolvePath(base, firstNonEmpty(os.Getenv(DebugDirEnvVar), DefaultDebugDir)),
		AllowedOrigins:    splitList(firstNonEmpty(os.Getenv(OriginsEnvVar), DefaultOrigins)),
		SaveDir:           resolvePath(base, firstNonEmpty(os.Getenv(SaveDirEnvVar), DefaultSaveDir)),
		BaseDir:           base,
	}

	return cfg, nil
}

// DebugConfigPath is where the persistent debug flag lives.
func (c *Config) DebugConfigPath(name string) string {
	return resolvePath(c.BaseDir, name)
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(EnvFileEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func baseDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "watchpoint")
	}
	if execPath, err := os.Executable(); err == nil {
		return filepath.Dir(execPath)
	}
	return "."
}

func resolvePath(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// resolvePortRange falls back to the defaults for unparsable values or an
// inverted range.
func resolvePortRange(startStr, endStr string) (int, int) {
	start := parsePort(startStr, DefaultPortStart)
	end := parsePort(endStr, DefaultPortEnd)
	if end < start {
		return DefaultPortStart, DefaultPortEnd
	}
	return start, end
}

func parsePort(v string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 || n > 65535 {
		return def
	}
	return n
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
