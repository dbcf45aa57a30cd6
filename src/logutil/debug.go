package logutil

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

const (
	// DebugConfigFile persists debug mode across restarts.
	DebugConfigFile = "watchpoint_debug_config.json"
	dumpLines       = 50
)

type debugConfig struct {
	DebugMode bool   `json:"debug_mode"`
	Timestamp string `json:"timestamp"`
}

// Debug tracks persistent debug mode and writes diagnostic dumps.
type Debug struct {
	mu      sync.Mutex
	config  string
	dir     string
	enabled bool
	session string
	dumping bool
	ring    *Ring
}

// Dump is the JSON document written by Debug.Dump.
type Dump struct {
	Timestamp  string   `json:"timestamp"`
	SessionID  string   `json:"session_id"`
	Reason     string   `json:"reason"`
	System     System   `json:"system_info"`
	State      any      `json:"state,omitempty"`
	RecentLogs []string `json:"recent_logs"`
}

// System describes the running process.
type System struct {
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
	Goroutines int    `json:"goroutines"`
}

// LoadDebug reads debug mode from configPath. fallback applies when the file
// is missing or unreadable. Dumps go to dir.
func LoadDebug(configPath, dir string, fallback bool) *Debug {
	d := &Debug{config: configPath, dir: dir, enabled: fallback, ring: Recent}
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		var c debugConfig
		if err := json.Unmarshal(data, &c); err != nil {
			log.Printf("logutil: error loading debug config: %v", err)
		} else {
			d.enabled = c.DebugMode
		}
	case !os.IsNotExist(err):
		log.Printf("logutil: error loading debug config: %v", err)
	}
	if d.enabled {
		d.session = time.Now().Format("20060102_150405")
		log.Printf("Persistent debug mode active, session %s", d.session)
	}
	return d
}

// Enabled reports whether debug mode is on.
func (d *Debug) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Dir returns the dump directory.
func (d *Debug) Dir() string { return d.dir }

// SetEnabled switches debug mode and persists it.
func (d *Debug) SetEnabled(on bool) error {
	d.mu.Lock()
	d.enabled = on
	if on {
		d.session = time.Now().Format("20060102_150405")
	}
	session := d.session
	d.mu.Unlock()
	if on {
		log.Printf("Debug mode enabled, session %s", session)
	} else {
		log.Printf("Debug mode disabled")
	}
	data, err := json.MarshalIndent(debugConfig{DebugMode: on, Timestamp: time.Now().Format("2006-01-02 15:04:05")}, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(d.config); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("save debug config: %w", err)
		}
	}
	if err := os.WriteFile(d.config, data, 0644); err != nil {
		return fmt.Errorf("save debug config: %w", err)
	}
	return nil
}

// AutoDump writes a dump only while debug mode is on.
func (d *Debug) AutoDump(reason string, state any) {
	if !d.Enabled() {
		return
	}
	if _, err := d.Dump(reason, state); err != nil {
		log.Printf("Error saving debug dump: %v", err)
	}
}

// Dump writes state and the recent log lines to a new file in the dump
// directory and returns its path. A dump requested while another is being
// written is skipped and returns an empty path.
func (d *Debug) Dump(reason string, state any) (string, error) {
	d.mu.Lock()
	if d.dumping {
		d.mu.Unlock()
		return "", nil
	}
	d.dumping = true
	session := d.session
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.dumping = false
		d.mu.Unlock()
	}()

	now := time.Now()
	if session == "" {
		session = "manual"
	}
	doc := Dump{
		Timestamp: now.Format("20060102_150405"),
		SessionID: session,
		Reason:    reason,
		System: System{
			GoVersion:  runtime.Version(),
			Platform:   runtime.GOOS + "/" + runtime.GOARCH,
			Goroutines: runtime.NumGoroutine(),
		},
		State:      state,
		RecentLogs: d.ring.Tail(dumpLines),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode debug dump: %w", err)
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}
	name := fmt.Sprintf("debug_dump_%s_%s_%03d.json", session, doc.Timestamp, now.Nanosecond()/int(time.Millisecond))
	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write debug dump: %w", err)
	}
	log.Printf("Debug dump saved: %s", name)
	return path, nil
}
