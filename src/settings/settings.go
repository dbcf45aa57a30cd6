package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Size modes accepted in window_size_mode.
const (
	SizeFixed          = "fixed"
	SizeHalfVertical   = "Half Vertical"
	SizeHalfHorizontal = "Half Horizontal"
	SizeQuarter        = "Quarter"
)

// Save formats accepted in save_format.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

const (
	MinJPEGQuality = 10
	MaxJPEGQuality = 100
	minWidth       = 200
	minHeight      = 150
)

// Record is the flat settings record persisted next to the resident.
// WindowX/WindowY are nil when the window should be auto-placed.
type Record struct {
	WindowWidth    int    `json:"window_width"`
	WindowHeight   int    `json:"window_height"`
	WindowX        *int   `json:"window_x"`
	WindowY        *int   `json:"window_y"`
	WindowSizeMode string `json:"window_size_mode"`
	ShowToolbar    bool   `json:"show_toolbar"`
	SaveFormat     string `json:"save_format"`
	JPEGQuality    int    `json:"jpeg_quality"`
	MonitorIndex   int    `json:"monitor_index"`
}

// Defaults returns the record used when nothing valid is on disk.
func Defaults() Record {
	return Record{
		WindowWidth:    800,
		WindowHeight:   600,
		WindowSizeMode: SizeFixed,
		ShowToolbar:    true,
		SaveFormat:     FormatPNG,
		JPEGQuality:    90,
		MonitorIndex:   0,
	}
}

// SizeModes lists the modes offered by the settings dialog.
func SizeModes() []string {
	return []string{SizeFixed, SizeHalfVertical, SizeHalfHorizontal, SizeQuarter}
}

// HasPosition reports whether an explicit window position was saved.
func (r Record) HasPosition() bool { return r.WindowX != nil && r.WindowY != nil }

// WithPosition returns a copy of r with the saved position set.
func (r Record) WithPosition(x, y int) Record {
	r.WindowX, r.WindowY = &x, &y
	return r
}

// Equal compares two records including the nullable position.
func (r Record) Equal(o Record) bool {
	if !intPtrEqual(r.WindowX, o.WindowX) || !intPtrEqual(r.WindowY, o.WindowY) {
		return false
	}
	r.WindowX, r.WindowY, o.WindowX, o.WindowY = nil, nil, nil, nil
	return r == o
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Normalize replaces every out-of-range field with a safe value.
func (r Record) Normalize() Record {
	d := Defaults()
	if w, h, ok := parseDimensions(r.WindowSizeMode); ok {
		r.WindowSizeMode = SizeFixed
		r.WindowWidth, r.WindowHeight = w, h
	}
	switch r.WindowSizeMode {
	case SizeFixed, SizeHalfVertical, SizeHalfHorizontal, SizeQuarter:
	default:
		r.WindowSizeMode = d.WindowSizeMode
	}
	if r.WindowWidth < minWidth {
		r.WindowWidth = d.WindowWidth
	}
	if r.WindowHeight < minHeight {
		r.WindowHeight = d.WindowHeight
	}
	switch strings.ToLower(strings.TrimSpace(r.SaveFormat)) {
	case "jpeg", "jpg":
		r.SaveFormat = FormatJPEG
	case "png":
		r.SaveFormat = FormatPNG
	default:
		r.SaveFormat = d.SaveFormat
	}
	r.JPEGQuality = ClampQuality(r.JPEGQuality)
	if r.MonitorIndex < 0 {
		r.MonitorIndex = 0
	}
	if (r.WindowX == nil) != (r.WindowY == nil) {
		r.WindowX, r.WindowY = nil, nil
	}
	return r
}

// ClampQuality forces a JPEG quality into [MinJPEGQuality, MaxJPEGQuality].
func ClampQuality(q int) int {
	if q < MinJPEGQuality {
		return MinJPEGQuality
	}
	if q > MaxJPEGQuality {
		return MaxJPEGQuality
	}
	return q
}

// parseDimensions accepts the legacy "800x600" size mode spelling.
func parseDimensions(mode string) (int, int, bool) {
	w, h, found := strings.Cut(strings.ToLower(strings.TrimSpace(mode)), "x")
	if !found {
		return 0, 0, false
	}
	wi, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, false
	}
	hi, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, false
	}
	return wi, hi, true
}

// Load reads the record at path. It never fails the caller: the returned
// record is always fully populated, and the error only describes what was
// recovered from (missing file, parse error, invalid keys).
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		rec := Defaults()
		if werr := Save(path, rec); werr != nil {
			log.Printf("settings: could not create default file %s: %v", path, werr)
		}
		return rec, nil
	}
	if err != nil {
		return Defaults(), fmt.Errorf("read settings: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Defaults(), fmt.Errorf("parse settings %s: %w", path, err)
	}

	rec := Defaults()
	var bad []string
	for key, val := range raw {
		if err := rec.apply(key, val); err != nil {
			bad = append(bad, key)
		}
	}
	rec = rec.Normalize()
	if len(bad) > 0 {
		return rec, fmt.Errorf("settings: ignored invalid keys %v", bad)
	}
	return rec, nil
}

// apply decodes a single key so one bad value does not discard the others.
func (r *Record) apply(key string, val json.RawMessage) error {
	switch key {
	case "window_width":
		return decodeInto(val, &r.WindowWidth)
	case "window_height":
		return decodeInto(val, &r.WindowHeight)
	case "window_x":
		return decodeInto(val, &r.WindowX)
	case "window_y":
		return decodeInto(val, &r.WindowY)
	case "window_size_mode":
		return decodeInto(val, &r.WindowSizeMode)
	case "show_toolbar":
		return decodeInto(val, &r.ShowToolbar)
	case "save_format":
		return decodeInto(val, &r.SaveFormat)
	case "jpeg_quality":
		return decodeInto(val, &r.JPEGQuality)
	case "monitor_index":
		return decodeInto(val, &r.MonitorIndex)
	}
	// unknown keys are tolerated for forward compatibility
	return nil
}

// decodeInto leaves dst untouched unless val decodes cleanly. Unmarshal
// allocates pointers before it reports a type mismatch.
func decodeInto[T any](val json.RawMessage, dst *T) error {
	var v T
	if err := json.Unmarshal(val, &v); err != nil {
		return err
	}
	*dst = v
	return nil
}

// Save atomically overwrites path with the normalized record.
func Save(path string, rec Record) error {
	data, err := json.MarshalIndent(rec.Normalize(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".watchpoint_settings_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
