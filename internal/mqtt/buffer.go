package mqtt

import (
	"log"
	"sync"
)

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores messages while disconnected.
// Not safe for concurrent use; outbox synchronizes it.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any message was dropped since last drain
	dropped  uint64
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if r.count == r.capacity {
		if !r.overflow {
			log.Printf("mqtt: buffer full (%d messages), dropping oldest", r.capacity)
			r.overflow = true
		}
		r.dropped++
		// Overwrite oldest: head is already pointing at it
		r.buf[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	result := make([]bufferedMsg, r.count)
	// Oldest item is at (head - count) mod capacity
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	r.overflow = false
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}

// outbox sends messages while connected and holds them in a ringBuffer
// otherwise. flush replays held messages in order.
type outbox struct {
	mu        sync.Mutex
	held      *ringBuffer
	send      func(bufferedMsg) error
	connected func() bool
}

func newOutbox(capacity int, send func(bufferedMsg) error, connected func() bool) *outbox {
	return &outbox{held: newRingBuffer(capacity), send: send, connected: connected}
}

// publish sends msg, or holds it if the broker is unreachable. A failed send
// is held and its error returned.
func (o *outbox) publish(msg bufferedMsg) error {
	if !o.connected() {
		o.hold(msg)
		return nil
	}
	if err := o.send(msg); err != nil {
		o.hold(msg)
		return err
	}
	return nil
}

func (o *outbox) hold(msg bufferedMsg) {
	o.mu.Lock()
	o.held.push(msg)
	o.mu.Unlock()
}

// flush replays held messages oldest first. On the first failure the
// unsent remainder is held again. It returns the number sent.
func (o *outbox) flush() int {
	o.mu.Lock()
	msgs := o.held.drainAll()
	o.mu.Unlock()

	for i, msg := range msgs {
		if err := o.send(msg); err != nil {
			log.Printf("mqtt: replay stopped after %d of %d messages: %v", i, len(msgs), err)
			o.mu.Lock()
			for _, m := range msgs[i:] {
				o.held.push(m)
			}
			o.mu.Unlock()
			return i
		}
	}
	if len(msgs) > 0 {
		log.Printf("mqtt: replayed %d buffered messages", len(msgs))
	}
	return len(msgs)
}

func (o *outbox) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.held.len()
}
