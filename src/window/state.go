package window

// State is the lifecycle state of the preview window. There is no way back
// to Uninitialized once a window exists.
type State int

const (
	Uninitialized State = iota
	Normal
	Minimized
	Fullscreen
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Normal:
		return "normal"
	case Minimized:
		return "minimized"
	case Fullscreen:
		return "fullscreen"
	}
	return "unknown"
}

// MarshalText lets State appear by name in JSON status output.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
