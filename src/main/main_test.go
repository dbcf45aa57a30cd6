package main

import (
	"testing"

	"watchpoint/src/config"
)

func TestNormalizeLegacyArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		out  []string
	}{
		{
			name: "Normalizes long single dash flags",
			in:   []string{"watchpoint", "-debug", "-settings", "/tmp/s.json"},
			out:  []string{"watchpoint", "--debug", "--settings", "/tmp/s.json"},
		},
		{
			name: "Normalizes equals form",
			in:   []string{"watchpoint", "-hotkey=Ctrl+Alt+P", "-settings=/tmp/s.json"},
			out:  []string{"watchpoint", "--hotkey=Ctrl+Alt+P", "--settings=/tmp/s.json"},
		},
		{
			name: "Leaves other flags unchanged",
			in:   []string{"watchpoint", "--debug", "--other", "-v"},
			out:  []string{"watchpoint", "--debug", "--other", "-v"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeLegacyArgs(tt.in)
			if len(got) != len(tt.out) {
				t.Fatalf("Expected len=%d, got %d", len(tt.out), len(got))
			}
			for i := range got {
				if got[i] != tt.out[i] {
					t.Fatalf("Expected arg[%d]=%q, got %q", i, tt.out[i], got[i])
				}
			}
		})
	}
}

func TestNewRootCmdParsesFlags(t *testing.T) {
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--debug", "--settings", "/tmp/s.json", "--hotkey", "Alt+F9"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if !opts.debug {
		t.Fatal("Expected debug=true")
	}
	if opts.settingsFile != "/tmp/s.json" {
		t.Fatalf("Expected settingsFile=/tmp/s.json, got %q", opts.settingsFile)
	}
	if opts.hotkey != "Alt+F9" {
		t.Fatalf("Expected hotkey=Alt+F9, got %q", opts.hotkey)
	}
}

func TestPortRange(t *testing.T) {
	r := portRange(&config.Config{PortStart: 49600, PortEnd: 49650})
	if r.Start != 49600 || r.End != 49650 {
		t.Errorf("Unexpected range %+v", r)
	}
}
