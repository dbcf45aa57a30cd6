package hotkey

import (
	"testing"
)

func TestParseHotkey(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"Ctrl+Alt+W", []string{"ctrl", "alt", "w"}},
		{"Ctrl+Shift+O", []string{"ctrl", "shift", "o"}},
		{"Control+alt+e", []string{"ctrl", "alt", "e"}},
		{"Alt+F4", []string{"alt", "f4"}},
		{"Ctrl+Win+E", []string{"ctrl", "cmd", "e"}},
		{"Super+Alt+T", []string{"cmd", "alt", "t"}},
		{"Ctrl++W", []string{"ctrl", "w"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseHotkey(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("parseHotkey(%q) returned %d keys, expected %d",
					tt.input, len(result), len(tt.expected))
				return
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("parseHotkey(%q)[%d] = %q, expected %q",
						tt.input, i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestKeyNameToRawcodesKnownKeys(t *testing.T) {
	for _, name := range []string{"ctrl", "alt", "shift", "cmd", "a", "w", "z", "0", "9", "f1", "f24", "space", "esc"} {
		if len(keyNameToRawcodes(name)) == 0 {
			t.Errorf("keyNameToRawcodes(%q) returned no rawcodes", name)
		}
	}
	for _, name := range []string{"unknown", "f25", "f0"} {
		if rc := keyNameToRawcodes(name); rc != nil {
			t.Errorf("keyNameToRawcodes(%q) = %v, expected nil", name, rc)
		}
	}
}

func fakeCodes(name string) []uint16 {
	switch name {
	case "ctrl":
		return []uint16{1, 2}
	case "alt":
		return []uint16{3}
	case "w":
		return []uint16{4}
	}
	return nil
}

func TestComboFiresOncePerPress(t *testing.T) {
	c, err := newCombo("Ctrl+Alt+W", fakeCodes)
	if err != nil {
		t.Fatal(err)
	}
	if c.keyDown(2) || c.keyDown(3) {
		t.Fatal("Expected no fire before the combination is complete")
	}
	if !c.keyDown(4) {
		t.Fatal("Expected fire on the final key")
	}
	// key repeat while held must not fire again
	if c.keyDown(4) {
		t.Error("Expected no fire on repeat")
	}
	c.keyUp(1)
	c.keyUp(2)
	c.keyUp(3)
	c.keyUp(4)
	c.keyDown(1)
	c.keyDown(3)
	if !c.keyDown(4) {
		t.Error("Expected fire after release and press again")
	}
}

func TestComboReleaseBreaksCombination(t *testing.T) {
	c, _ := newCombo("Ctrl+Alt+W", fakeCodes)
	c.keyDown(1)
	c.keyDown(3)
	c.keyUp(1)
	if c.keyDown(4) {
		t.Error("Expected no fire after ctrl was released")
	}
}

func TestNewComboRejectsUnknownKeys(t *testing.T) {
	if _, err := newCombo("Ctrl+Banana", fakeCodes); err == nil {
		t.Error("Expected error for unmapped key")
	}
	if _, err := newCombo("", fakeCodes); err == nil {
		t.Error("Expected error for empty combination")
	}
}
