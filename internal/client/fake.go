package client

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time

	// Timers contains every timer created, in order.
	Timers []*FakeTimer

	// Scheduled records the delay of every AfterFunc call.
	Scheduled []time.Duration
}

// FakeTimer is a timer created by FakeClock.
type FakeTimer struct {
	clock   *FakeClock
	At      time.Time
	F       func()
	stopped bool
	fired   bool
}

// NewFakeClock creates a clock reading now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &FakeTimer{clock: c, At: c.now.Add(d), F: f}
	c.Timers = append(c.Timers, t)
	c.Scheduled = append(c.Scheduled, d)
	return t
}

// Stop cancels the timer. It reports false if it already fired or stopped.
func (t *FakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward and runs the timers that became due,
// earliest first.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*FakeTimer
	for _, t := range c.Timers {
		if !t.fired && !t.stopped && !t.At.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].At.Before(due[j].At) })
	for _, t := range due {
		t.F()
	}
}

// Pending returns the number of timers that have neither fired nor stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.Timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// FakeCentral is a scripted Central.
type FakeCentral struct {
	mu sync.Mutex

	// ScanPeer is returned by Scan.
	ScanPeer string
	// ScanErr, if set, is returned by Scan.
	ScanErr error

	// ConnectErrs are returned by successive Connect calls. Once
	// exhausted, Connect succeeds.
	ConnectErrs []error

	// Block, if set, holds Connect until it is closed or ctx is done.
	Block chan struct{}

	// DropDuringSetup is the number of successive successful Connect calls
	// whose link drops before Connect returns.
	DropDuringSetup int

	// Dials records the peer of every Connect call.
	Dials []string

	// Conns contains every connection handed out.
	Conns []*FakeConn
}

// NewFakeCentral creates a FakeCentral for testing.
func NewFakeCentral() *FakeCentral {
	return &FakeCentral{}
}

func (f *FakeCentral) Scan(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ScanErr != nil {
		return "", f.ScanErr
	}
	if f.ScanPeer == "" {
		return "", errors.New("no tag found")
	}
	return f.ScanPeer, nil
}

func (f *FakeCentral) Connect(ctx context.Context, peer string, h Handlers) (Conn, error) {
	f.mu.Lock()
	f.Dials = append(f.Dials, peer)
	var err error
	if len(f.ConnectErrs) > 0 {
		err = f.ConnectErrs[0]
		f.ConnectErrs = f.ConnectErrs[1:]
	}
	block := f.Block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	c := &FakeConn{Peer: peer, h: h}
	f.mu.Lock()
	f.Conns = append(f.Conns, c)
	drop := f.DropDuringSetup > 0
	if drop {
		f.DropDuringSetup--
	}
	f.mu.Unlock()
	if drop {
		c.Drop()
	}
	return c, nil
}

// DialCount returns the number of Connect calls.
func (f *FakeCentral) DialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Dials)
}

// Last returns the newest connection, or nil.
func (f *FakeCentral) Last() *FakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Conns) == 0 {
		return nil
	}
	return f.Conns[len(f.Conns)-1]
}

// FakeConn is a connection handed out by FakeCentral.
type FakeConn struct {
	mu sync.Mutex
	h  Handlers

	Peer string

	// Writes contains every payload written.
	Writes [][]byte

	// WriteErr, if set, is returned by Write.
	WriteErr error

	// Closed tracks if Disconnect was called.
	Closed bool
}

func (c *FakeConn) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.Writes = append(c.Writes, append([]byte(nil), p...))
	return nil
}

// Disconnect closes the connection. Like a real stack, it also delivers
// the disconnect callback.
func (c *FakeConn) Disconnect() error {
	c.mu.Lock()
	c.Closed = true
	c.mu.Unlock()
	if c.h.Disconnected != nil {
		c.h.Disconnected()
	}
	return nil
}

// Notify simulates a notification from the tag.
func (c *FakeConn) Notify(p []byte) {
	if c.h.Notify != nil {
		c.h.Notify(p)
	}
}

// Drop simulates the link being lost.
func (c *FakeConn) Drop() {
	if c.h.Disconnected != nil {
		c.h.Disconnected()
	}
}

// Written returns a copy of the written payloads.
func (c *FakeConn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.Writes...)
}

// ErrNoStoredPeer is returned by FakePeerStore when empty.
var ErrNoStoredPeer = errors.New("no stored peer")

// FakePeerStore is an in-memory PeerStore.
type FakePeerStore struct {
	mu      sync.Mutex
	Peer    string
	SavedAt time.Time
	Cleared int
}

func (s *FakePeerStore) LoadPeer() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Peer == "" {
		return "", ErrNoStoredPeer
	}
	return s.Peer, nil
}

func (s *FakePeerStore) SavePeer(peer string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Peer = peer
	s.SavedAt = at
	return nil
}

func (s *FakePeerStore) ClearPeer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Peer = ""
	s.Cleared++
	return nil
}
