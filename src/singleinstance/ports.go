package singleinstance

// Range is an inclusive loopback port range.
type Range struct {
	Start int
	End   int
}

// Normalize clamps the range to [1024, 65535] and orders its ends.
func (r Range) Normalize() Range {
	if r.Start < 1024 {
		r.Start = 1024
	}
	if r.End > 65535 {
		r.End = 65535
	}
	if r.End < r.Start {
		r.Start, r.End = r.End, r.Start
	}
	return r
}
