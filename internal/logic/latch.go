package logic

import "sync/atomic"

// Latch is a one-shot flag that may be set from any goroutine (edge
// handlers, radio callbacks) and is consumed by the control loop with Take.
// The zero value is an unset latch.
type Latch struct {
	v atomic.Bool
}

// Set raises the latch. It never blocks or allocates.
func (l *Latch) Set() {
	l.v.Store(true)
}

// Take reports whether the latch was set and clears it.
func (l *Latch) Take() bool {
	return l.v.Swap(false)
}

// Peek reports whether the latch is set without clearing it.
func (l *Latch) Peek() bool {
	return l.v.Load()
}
