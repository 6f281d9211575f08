package mqtt

import (
	"sync"
	"time"

	"github.com/sweeney/respiration-monitor/internal/logic"
)

// PublishedReading is a Reading recorded by FakePublisher.
type PublishedReading struct {
	Peer    string
	Reading logic.Reading
	At      time.Time
}

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Readings contains all Readings that were published.
	Readings []PublishedReading

	// Payloads contains the JSON payloads of published Readings.
	Payloads [][]byte

	// SessionEvents contains all session events that were published.
	SessionEvents []SessionEvent

	// SessionPayloads contains the JSON payloads for session events.
	SessionPayloads [][]byte

	// PublishError, if set, will be returned by PublishReading.
	PublishError error

	// PublishSessionError, if set, will be returned by PublishSession.
	PublishSessionError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishReading records the Reading.
func (f *FakePublisher) PublishReading(peer string, r logic.Reading, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatReadingPayload(peer, r, at)
	if err != nil {
		return err
	}
	f.Readings = append(f.Readings, PublishedReading{Peer: peer, Reading: r, At: at})
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSession records the session event.
func (f *FakePublisher) PublishSession(event SessionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSessionError != nil {
		return f.PublishSessionError
	}

	payload, err := FormatSessionPayload(event)
	if err != nil {
		return err
	}
	f.SessionEvents = append(f.SessionEvents, event)
	f.SessionPayloads = append(f.SessionPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Events returns the names of recorded session events in order.
func (f *FakePublisher) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SessionEvents))
	for i, e := range f.SessionEvents {
		names[i] = e.Event
	}
	return names
}

// ReadingCount returns the number of recorded Readings.
func (f *FakePublisher) ReadingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Readings)
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Readings = nil
	f.Payloads = nil
	f.SessionEvents = nil
	f.SessionPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSessionError = nil
	f.Connected = false
}
