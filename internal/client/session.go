// Package client is the monitoring side of the tag: it holds one session
// to a tag over a radio in the central role, decodes telemetry and encodes
// commands, and reconnects with backoff after an unexpected drop.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/respiration-monitor/internal/logic"
	"github.com/sweeney/respiration-monitor/internal/wire"
)

var (
	// ErrNotConnected is returned by commands issued without a connection.
	ErrNotConnected = errors.New("client: not connected")
	// ErrBusy is returned when a connection attempt is already in flight
	// or a connection already exists.
	ErrBusy = errors.New("client: connection attempt in progress")
	// ErrCancelled is returned when an attempt was superseded by Disconnect.
	ErrCancelled = errors.New("client: connection attempt cancelled")
	// ErrLinkLost is returned when the link dropped before the attempt
	// finished setting it up.
	ErrLinkLost = errors.New("client: link lost during setup")
)

// ConnectionState is the client-side session state.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Disconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Disconnecting:
		return "DISCONNECTING"
	}
	return "UNKNOWN"
}

// SessionDescriptor identifies the peer a session reconnects to.
type SessionDescriptor struct {
	PeerID        string
	LastKnownGood time.Time
	Attempts      int
}

// Handlers receive callbacks for one connection.
type Handlers struct {
	Notify       func(p []byte)
	Disconnected func()
}

// Conn is an established connection to a tag.
type Conn interface {
	// Write writes the command characteristic.
	Write(p []byte) error
	// Disconnect closes the connection.
	Disconnect() error
}

// Central is a radio in the central role.
type Central interface {
	// Scan returns the address of the first tag found.
	Scan(ctx context.Context) (string, error)
	// Connect connects to peer and subscribes to Readings.
	Connect(ctx context.Context, peer string, h Handlers) (Conn, error)
}

// Timer is a cancellable scheduled call.
type Timer interface {
	Stop() bool
}

// Clock schedules reconnect attempts.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// PeerStore persists the last paired peer.
type PeerStore interface {
	LoadPeer() (string, error)
	SavePeer(peer string, at time.Time) error
	ClearPeer() error
}

// Config holds session settings.
type Config struct {
	// MaxAttempts bounds automatic reconnects after one drop.
	MaxAttempts int
	// Backoff is the delay before the first reconnect; each further
	// attempt doubles it.
	Backoff time.Duration
	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration
	// HistorySize is the capacity of the Reading history.
	HistorySize int
}

// DefaultConfig reconnects after 2s, 4s and 8s.
var DefaultConfig = Config{
	MaxAttempts:    3,
	Backoff:        2 * time.Second,
	ConnectTimeout: 10 * time.Second,
	HistorySize:    300,
}

// Hooks are optional observers. They are called without internal locks held.
type Hooks struct {
	OnState   func(ConnectionState, SessionDescriptor)
	OnReading func(peer string, r logic.Reading)
	OnReject  func(peer string, err error)
}

// Stats are session counters.
type Stats struct {
	Received uint64
	Rejected uint64
}

// Manager owns one session. All methods are safe for concurrent use.
type Manager struct {
	central Central
	clock   Clock
	store   PeerStore
	cfg     Config
	hooks   Hooks
	history *History

	mu      sync.Mutex
	state   ConnectionState
	session SessionDescriptor
	conn    Conn
	gen     uint64 // bumped per connection attempt and on Disconnect
	dialing bool
	lost    bool // link dropped while dialing
	timer   Timer
	timerID uint64 // bumped on schedule and cancel
	stats   Stats
}

// NewManager creates a disconnected session manager. store may be nil.
func NewManager(central Central, clock Clock, store PeerStore, cfg Config, hooks Hooks) *Manager {
	if clock == nil {
		clock = realClock{}
	}
	return &Manager{
		central: central,
		clock:   clock,
		store:   store,
		cfg:     cfg,
		hooks:   hooks,
		history: NewHistory(cfg.HistorySize),
	}
}

// History returns the Reading history.
func (m *Manager) History() *History { return m.history }

// State returns the connection state and session descriptor.
func (m *Manager) State() (ConnectionState, SessionDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.session
}

// Stats returns the session counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Resume connects to the stored peer, if any.
func (m *Manager) Resume(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	peer, err := m.store.LoadPeer()
	if err != nil {
		return fmt.Errorf("load peer: %w", err)
	}
	log.Printf("client: resuming session with %s", peer)
	return m.Connect(ctx, peer)
}

// Connect connects to peer, scanning for a tag when peer is empty. It is a
// user-initiated connection: any pending reconnect is cancelled.
func (m *Manager) Connect(ctx context.Context, peer string) error {
	if peer == "" {
		found, err := m.central.Scan(ctx)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		log.Printf("client: found tag %s", found)
		peer = found
	}
	return m.dial(ctx, peer, true)
}

// Disconnect closes the session and suppresses automatic reconnects until
// the next Connect. The stored peer is forgotten.
func (m *Manager) Disconnect() error {
	return m.shutdown(true)
}

// Close ends the session like Disconnect but keeps the stored peer, so the
// next Resume reconnects to it.
func (m *Manager) Close() error {
	return m.shutdown(false)
}

func (m *Manager) shutdown(forget bool) error {
	m.mu.Lock()
	m.session.Attempts = m.cfg.MaxAttempts
	m.cancelReconnectLocked()
	m.gen++
	conn := m.conn
	m.conn = nil
	if conn != nil {
		m.state = Disconnecting
	} else {
		m.state = Disconnected
	}
	state, session := m.state, m.session
	m.mu.Unlock()
	m.emitState(state, session)

	var err error
	if conn != nil {
		err = conn.Disconnect()
		m.mu.Lock()
		m.state = Disconnected
		session = m.session
		m.mu.Unlock()
		m.emitState(Disconnected, session)
	}

	if forget && m.store != nil {
		if cerr := m.store.ClearPeer(); cerr != nil {
			log.Printf("client: clear stored peer: %v", cerr)
		}
	}
	if forget {
		log.Printf("client: disconnected by user")
	} else {
		log.Printf("client: session closed")
	}
	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// CancelReconnect cancels a scheduled reconnect. It is idempotent.
func (m *Manager) CancelReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelReconnectLocked()
}

func (m *Manager) cancelReconnectLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	// A timer that already fired sees a stale id and does nothing
	m.timerID++
}

// SetMute mutes or unmutes the tag's buzzer.
func (m *Manager) SetMute(on bool) error { return m.Send(logic.Mute(on)) }

// SetVolume sets the tag's buzzer volume (0-100).
func (m *Manager) SetVolume(v uint8) error { return m.Send(logic.SetVolume(v)) }

// PowerOff puts the tag to sleep.
func (m *Manager) PowerOff() error { return m.Send(logic.PowerOff()) }

// Send encodes cmd and writes it to the connected tag.
func (m *Manager) Send(cmd logic.Command) error {
	p, err := wire.EncodeCommand(cmd)
	if err != nil {
		return err
	}

	m.mu.Lock()
	conn := m.conn
	connected := m.state == Connected
	m.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	if err := conn.Write(p); err != nil {
		return fmt.Errorf("write %s: %w", cmd, err)
	}
	log.Printf("client: sent %s", cmd)
	return nil
}

// dial makes one connection attempt. At most one attempt is in flight. A
// user attempt starts a fresh reconnect budget.
func (m *Manager) dial(ctx context.Context, peer string, user bool) error {
	m.mu.Lock()
	if m.dialing || m.state == Connected {
		m.mu.Unlock()
		return ErrBusy
	}
	if user {
		m.session.Attempts = 0
		m.cancelReconnectLocked()
	}
	m.dialing = true
	m.lost = false
	m.gen++
	gen := m.gen
	m.state = Connecting
	m.session.PeerID = peer
	session := m.session
	m.mu.Unlock()
	m.emitState(Connecting, session)

	if m.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		defer cancel()
	}

	conn, err := m.central.Connect(ctx, peer, Handlers{
		Notify:       func(p []byte) { m.handleNotify(gen, p) },
		Disconnected: func() { m.handleDisconnect(gen) },
	})

	m.mu.Lock()
	m.dialing = false
	lost := m.lost
	m.lost = false
	if gen != m.gen {
		// Disconnect ran while we were connecting
		m.mu.Unlock()
		if conn != nil {
			conn.Disconnect()
		}
		return ErrCancelled
	}
	if err != nil {
		m.state = Disconnected
		session := m.session
		m.mu.Unlock()
		m.emitState(Disconnected, session)
		log.Printf("client: connect to %s failed: %v", peer, err)
		return fmt.Errorf("connect %s: %w", peer, err)
	}
	if lost {
		m.state = Disconnected
		session := m.session
		m.mu.Unlock()
		if conn != nil {
			conn.Disconnect()
		}
		m.emitState(Disconnected, session)
		log.Printf("client: link to %s lost during setup", peer)
		return fmt.Errorf("connect %s: %w", peer, ErrLinkLost)
	}

	now := m.clock.Now()
	m.conn = conn
	m.state = Connected
	m.session.LastKnownGood = now
	m.session.Attempts = 0
	session = m.session
	m.mu.Unlock()

	log.Printf("client: connected to %s", peer)
	m.emitState(Connected, session)
	if m.store != nil {
		if err := m.store.SavePeer(peer, now); err != nil {
			log.Printf("client: save peer: %v", err)
		}
	}
	return nil
}

func (m *Manager) handleDisconnect(gen uint64) {
	m.mu.Lock()
	if gen == m.gen && m.state == Connecting {
		// dial sees this once Connect returns
		m.lost = true
		m.mu.Unlock()
		return
	}
	if gen != m.gen || m.state != Connected {
		m.mu.Unlock()
		return
	}
	m.state = Disconnected
	m.conn = nil
	log.Printf("client: link to %s lost", m.session.PeerID)
	m.scheduleReconnectLocked()
	session := m.session
	m.mu.Unlock()

	m.emitState(Disconnected, session)
}

func (m *Manager) scheduleReconnectLocked() {
	if m.session.Attempts >= m.cfg.MaxAttempts {
		log.Printf("client: not reconnecting to %s after %d attempts", m.session.PeerID, m.session.Attempts)
		return
	}
	m.session.Attempts++
	delay := m.cfg.Backoff << (m.session.Attempts - 1)

	m.cancelReconnectLocked()
	id := m.timerID
	m.timer = m.clock.AfterFunc(delay, func() { m.reconnect(id) })
	log.Printf("client: reconnect attempt %d/%d in %v", m.session.Attempts, m.cfg.MaxAttempts, delay)
}

func (m *Manager) reconnect(id uint64) {
	m.mu.Lock()
	if id != m.timerID {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	if m.state == Connected || m.dialing {
		// A connection arrived on its own
		m.mu.Unlock()
		return
	}
	peer := m.session.PeerID
	m.mu.Unlock()

	err := m.dial(context.Background(), peer, false)
	if err == nil || errors.Is(err, ErrCancelled) || errors.Is(err, ErrBusy) {
		return
	}

	m.mu.Lock()
	if id == m.timerID && m.state == Disconnected {
		m.scheduleReconnectLocked()
	}
	m.mu.Unlock()
}

func (m *Manager) handleNotify(gen uint64, p []byte) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	peer := m.session.PeerID
	r, err := wire.Decode(p)
	if err != nil {
		m.stats.Rejected++
	} else {
		m.stats.Received++
	}
	m.mu.Unlock()

	if err != nil {
		log.Printf("client: dropping packet from %s: %v", peer, err)
		if m.hooks.OnReject != nil {
			m.hooks.OnReject(peer, err)
		}
		return
	}

	m.history.Push(r)
	if m.hooks.OnReading != nil {
		m.hooks.OnReading(peer, r)
	}
}

func (m *Manager) emitState(s ConnectionState, d SessionDescriptor) {
	if m.hooks.OnState != nil {
		m.hooks.OnState(s, d)
	}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
