package hotkey

import "log"

// keyNameToRawcodes maps a key name to Windows virtual key codes, listing
// both left and right variants for modifiers.
func keyNameToRawcodes(keyName string) []uint16 {
	switch keyName {
	case "ctrl":
		return []uint16{162, 163} // VK_LCONTROL, VK_RCONTROL
	case "alt":
		return []uint16{164, 165} // VK_LMENU, VK_RMENU
	case "shift":
		return []uint16{160, 161} // VK_LSHIFT, VK_RSHIFT
	case "cmd":
		return []uint16{91, 92} // VK_LWIN, VK_RWIN
	case "space":
		return []uint16{32}
	case "enter", "return":
		return []uint16{13}
	case "esc", "escape":
		return []uint16{27}
	case "tab":
		return []uint16{9}
	case "home":
		return []uint16{36}
	case "end":
		return []uint16{35}
	}
	if c, ok := singleChar(keyName); ok {
		switch {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c-'a') + 65}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c-'0') + 48}
		}
	}
	if n, ok := functionKey(keyName); ok {
		return []uint16{uint16(111 + n)} // VK_F1 = 112
	}
	log.Printf("WARNING: Unknown key name '%s', cannot map to rawcode", keyName)
	return nil
}
