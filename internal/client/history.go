package client

import (
	"sync"

	"github.com/sweeney/respiration-monitor/internal/logic"
)

// History is a fixed-capacity FIFO of decoded Readings. When full, the
// oldest Reading is evicted. Push never blocks on readers.
type History struct {
	mu       sync.Mutex
	buf      []logic.Reading
	capacity int
	head     int // next write position
	count    int
	evicted  uint64
}

// NewHistory creates a history holding up to capacity Readings.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		buf:      make([]logic.Reading, capacity),
		capacity: capacity,
	}
}

// Push appends r, evicting the oldest Reading if full.
func (h *History) Push(r logic.Reading) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.head] = r
	h.head = (h.head + 1) % h.capacity
	if h.count == h.capacity {
		h.evicted++
		return
	}
	h.count++
}

// Readings returns the stored Readings, oldest first.
func (h *History) Readings() []logic.Reading {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}
	result := make([]logic.Reading, h.count)
	// Oldest item is at (head - count) mod capacity
	start := (h.head - h.count + h.capacity) % h.capacity
	for i := 0; i < h.count; i++ {
		result[i] = h.buf[(start+i)%h.capacity]
	}
	return result
}

// Latest returns the newest Reading and whether one exists.
func (h *History) Latest() (logic.Reading, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return logic.Reading{}, false
	}
	return h.buf[(h.head-1+h.capacity)%h.capacity], true
}

// Len returns the number of stored Readings.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Evicted returns how many Readings were dropped to make room.
func (h *History) Evicted() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.evicted
}
