// Package link is the tag's telemetry/command endpoint: one notify
// characteristic carrying Readings and one write characteristic carrying
// Commands, over a radio in the peripheral role.
package link

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/respiration-monitor/internal/logic"
	"github.com/sweeney/respiration-monitor/internal/wire"
)

// ErrClosed is returned by radios used after Close.
var ErrClosed = errors.New("link: radio closed")

// EventKind identifies a radio callback.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventWrite
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "CONNECTED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventWrite:
		return "WRITE"
	}
	return "UNKNOWN"
}

// Event is a radio callback captured for the control loop.
type Event struct {
	Kind EventKind
	Peer string
	Data []byte
}

// Peripheral is a radio in the peripheral role exposing the tag service.
type Peripheral interface {
	// Open registers the service. handler is called from radio callbacks and
	// must not block.
	Open(handler func(Event)) error
	// Advertise starts (or restarts) discovery advertising.
	Advertise() error
	// StopAdvertising stops advertising.
	StopAdvertising() error
	// DisconnectPeer drops the connected central, if any.
	DisconnectPeer() error
	// Notify updates the reading characteristic and notifies subscribers.
	Notify(p []byte) error
	// Close releases the radio.
	Close() error
}

// Config holds link settings.
type Config struct {
	Format wire.Format
	// AdvertiseWindow is how long to keep advertising without a peer.
	AdvertiseWindow time.Duration
	// QueueSize bounds pending radio events and pending commands.
	QueueSize int
}

// DefaultConfig matches the tag's factory settings.
var DefaultConfig = Config{
	Format:          wire.FormatJSON,
	AdvertiseWindow: 30 * time.Second,
	QueueSize:       16,
}

// Link turns radio callbacks into state the control loop reads once per
// iteration. Only Deliver may be called from other goroutines.
type Link struct {
	radio Peripheral
	cfg   Config

	events   chan Event
	commands []logic.Command

	opened    bool
	connected bool
	peer      string
	advStart  time.Time
	dropped   int
}

// New creates a link over radio.
func New(radio Peripheral, cfg Config) *Link {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig.QueueSize
	}
	return &Link{
		radio:  radio,
		cfg:    cfg,
		events: make(chan Event, cfg.QueueSize),
	}
}

// Open registers the service with the radio. It is a no-op once the radio
// is open.
func (l *Link) Open() error {
	if l.opened {
		return nil
	}
	if err := l.radio.Open(l.Deliver); err != nil {
		return fmt.Errorf("open radio: %w", err)
	}
	l.opened = true
	return nil
}

// Start opens the service if needed and begins advertising. The
// advertising window restarts at now.
func (l *Link) Start(now time.Time) error {
	if err := l.Open(); err != nil {
		return err
	}
	l.advStart = now
	if err := l.radio.Advertise(); err != nil {
		return fmt.Errorf("advertise: %w", err)
	}
	log.Printf("link: advertising for %v", l.cfg.AdvertiseWindow)
	return nil
}

// Deliver queues a radio event. It never blocks; events beyond the queue
// size are dropped.
func (l *Link) Deliver(evt Event) {
	if evt.Data != nil {
		evt.Data = append([]byte(nil), evt.Data...)
	}
	select {
	case l.events <- evt:
	default:
		log.Printf("link: event queue full, dropping %s", evt.Kind)
	}
}

// Poll applies all queued radio events.
func (l *Link) Poll() {
	for {
		select {
		case evt := <-l.events:
			l.apply(evt)
		default:
			return
		}
	}
}

func (l *Link) apply(evt Event) {
	switch evt.Kind {
	case EventConnected:
		l.connected = true
		l.peer = evt.Peer
		log.Printf("link: peer %s connected", evt.Peer)
		if err := l.radio.StopAdvertising(); err != nil {
			log.Printf("link: stop advertising: %v", err)
		}
	case EventDisconnected:
		l.connected = false
		log.Printf("link: peer %s disconnected", evt.Peer)
		l.peer = ""
		if err := l.radio.Advertise(); err != nil {
			log.Printf("link: re-advertise: %v", err)
		}
	case EventWrite:
		cmd, err := wire.DecodeCommand(evt.Data)
		if err != nil {
			log.Printf("link: dropping command %q: %v", evt.Data, err)
			return
		}
		if len(l.commands) >= l.cfg.QueueSize {
			l.dropped++
			log.Printf("link: command queue full, dropping %s", cmd)
			return
		}
		log.Printf("link: received %s", cmd)
		l.commands = append(l.commands, cmd)
	}
}

// TakeCommand removes and returns the oldest pending command.
func (l *Link) TakeCommand() (logic.Command, bool) {
	if len(l.commands) == 0 {
		return logic.Command{}, false
	}
	cmd := l.commands[0]
	l.commands = l.commands[1:]
	return cmd, true
}

// Connected reports whether a peer is connected.
func (l *Link) Connected() bool { return l.connected }

// Dropped returns the number of commands discarded because the queue was full.
func (l *Link) Dropped() int { return l.dropped }

// Peer returns the connected peer address, if any.
func (l *Link) Peer() string { return l.peer }

// AdvertisingExpired reports whether the advertising window has elapsed.
func (l *Link) AdvertisingExpired(now time.Time) bool {
	return now.Sub(l.advStart) > l.cfg.AdvertiseWindow
}

// Send encodes r in the configured format and notifies the peer.
func (l *Link) Send(r logic.Reading) error {
	p, err := wire.Encode(r, l.cfg.Format)
	if err != nil {
		return err
	}
	if err := l.radio.Notify(p); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// Stop tears the link down before power-down: the connected peer is
// dropped, advertising stops and pending commands and events are discarded.
func (l *Link) Stop() error {
	l.Poll()
	var errs []error
	if l.connected {
		if err := l.radio.DisconnectPeer(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect %s: %w", l.peer, err))
		}
	}
	if err := l.radio.StopAdvertising(); err != nil {
		errs = append(errs, fmt.Errorf("stop advertising: %w", err))
	}
	l.discard()
	l.commands = nil
	l.connected = false
	l.peer = ""
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	log.Printf("link: stopped")
	return nil
}

// discard drops queued radio events without applying them.
func (l *Link) discard() {
	for {
		select {
		case <-l.events:
		default:
			return
		}
	}
}

// Close releases the radio.
func (l *Link) Close() error {
	return l.radio.Close()
}
