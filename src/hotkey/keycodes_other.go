//go:build !windows

package hotkey

import "log"

// keyNameToRawcodes maps a key name to X11 keysyms as reported by the hook.
func keyNameToRawcodes(keyName string) []uint16 {
	switch keyName {
	case "ctrl":
		return []uint16{0xffe3, 0xffe4} // Control_L, Control_R
	case "alt":
		return []uint16{0xffe9, 0xffea, 0xfe03} // Alt_L, Alt_R, ISO_Level3_Shift
	case "shift":
		return []uint16{0xffe1, 0xffe2}
	case "cmd":
		return []uint16{0xffeb, 0xffec} // Super_L, Super_R
	case "space":
		return []uint16{0x20}
	case "enter", "return":
		return []uint16{0xff0d}
	case "esc", "escape":
		return []uint16{0xff1b}
	case "tab":
		return []uint16{0xff09}
	case "home":
		return []uint16{0xff50}
	case "end":
		return []uint16{0xff57}
	}
	if c, ok := singleChar(keyName); ok {
		switch {
		case c >= 'a' && c <= 'z':
			// lower and upper case keysyms
			return []uint16{uint16(c), uint16(c - 'a' + 'A')}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c)}
		}
	}
	if n, ok := functionKey(keyName); ok {
		return []uint16{uint16(0xffbd + n)} // F1 = 0xffbe
	}
	log.Printf("WARNING: Unknown key name '%s', cannot map to rawcode", keyName)
	return nil
}
