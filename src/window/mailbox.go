package window

import "sync"

// mailbox is a capacity-1 slot with replace-on-push semantics. It tracks
// whether a drain is already scheduled so producers post at most one.
type mailbox[T any] struct {
	mu        sync.Mutex
	val       T
	full      bool
	scheduled bool
}

// put stores v, replacing any pending value. replaced reports a coalesced
// value; schedule reports that the caller must post a drain.
func (b *mailbox[T]) put(v T) (replaced, schedule bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	replaced = b.full
	b.val = v
	b.full = true
	if !b.scheduled {
		b.scheduled = true
		schedule = true
	}
	return replaced, schedule
}

// take empties the slot. A put after take schedules a new drain.
func (b *mailbox[T]) take() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	v, ok := b.val, b.full
	b.val = zero
	b.full = false
	b.scheduled = false
	return v, ok
}
