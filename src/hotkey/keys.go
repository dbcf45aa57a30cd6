package hotkey

import "strconv"

func singleChar(name string) (byte, bool) {
	if len(name) != 1 {
		return 0, false
	}
	return name[0], true
}

// functionKey parses "f1".."f24".
func functionKey(name string) (int, bool) {
	if len(name) < 2 || name[0] != 'f' {
		return 0, false
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil || n < 1 || n > 24 {
		return 0, false
	}
	return n, true
}
