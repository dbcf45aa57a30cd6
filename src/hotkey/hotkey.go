// Package hotkey watches for a global key combination.
package hotkey

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Listen registers combo (e.g. "Ctrl+Alt+W") and calls fire each time the
// full combination is pressed, until ctx is done. fire runs on the hook
// goroutine and must not block.
func Listen(ctx context.Context, combo string, fire func()) error {
	c, err := newCombo(combo, keyNameToRawcodes)
	if err != nil {
		return err
	}
	log.Printf("Hotkey listener configured for: %s", combo)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()
		evChan := gohook.Start()
		if evChan == nil {
			log.Printf("ERROR: gohook.Start() returned nil channel")
			return
		}
		defer gohook.End()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-evChan:
				if !ok {
					log.Printf("Event channel closed")
					return
				}
				switch ev.Kind {
				case gohook.KeyDown, gohook.KeyHold:
					if c.keyDown(ev.Rawcode) && fire != nil {
						log.Printf("Hotkey activated: %s", combo)
						fire()
					}
				case gohook.KeyUp:
					c.keyUp(ev.Rawcode)
				}
			}
		}
	}()
	return nil
}

type keyState struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

// combo tracks which keys of a combination are held.
type combo struct {
	mu   sync.Mutex
	keys []keyState
}

func newCombo(spec string, codes func(string) []uint16) (*combo, error) {
	names := parseHotkey(spec)
	c := &combo{}
	for _, name := range names {
		rc := codes(name)
		if len(rc) == 0 {
			return nil, fmt.Errorf("hotkey %q: cannot map key %q", spec, name)
		}
		c.keys = append(c.keys, keyState{name: name, rawcodes: rc})
	}
	if len(c.keys) == 0 {
		return nil, fmt.Errorf("hotkey %q: no keys", spec)
	}
	return c, nil
}

// keyDown records a press and reports whether the combination is complete.
// A completed combination resets so holding the keys fires once.
func (c *combo) keyDown(code uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	matched := false
	for i := range c.keys {
		if c.keys[i].matches(code) {
			if c.keys[i].pressed {
				return false
			}
			c.keys[i].pressed = true
			matched = true
		}
	}
	if !matched {
		return false
	}
	for i := range c.keys {
		if !c.keys[i].pressed {
			return false
		}
	}
	for i := range c.keys {
		c.keys[i].pressed = false
	}
	return true
}

func (c *combo) keyUp(code uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.keys {
		if c.keys[i].matches(code) {
			c.keys[i].pressed = false
		}
	}
}

func (k keyState) matches(code uint16) bool {
	for _, rc := range k.rawcodes {
		if rc == code {
			return true
		}
	}
	return false
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+w" to normalized key names
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "control":
			part = "ctrl"
		case "win", "cmd", "super", "meta":
			part = "cmd"
		}
		keys = append(keys, part)
	}
	return keys
}
