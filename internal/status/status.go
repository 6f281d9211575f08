// Package status provides a thread-safe status tracker for the tag client
// gateway. It is read by the HTTP handlers and embedded in MQTT session events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/respiration-monitor/internal/logic"
)

// NetworkInfo contains network state of the gateway host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains gateway configuration for display.
type Config struct {
	Peer        string // configured peer; empty = scan
	DBPath      string
	HistorySize int
	Broker      string
	HTTPAddr    string
}

// Session is the tracked tag session.
type Session struct {
	State         string
	Peer          string
	Attempts      int
	LastConnected time.Time
}

// Snapshot is a point-in-time view of gateway state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Session       Session
	Latest        logic.Reading
	LatestAt      time.Time
	HaveReading   bool
	Received      uint64
	Rejected      uint64
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the gateway started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable gateway state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Session:   Session{State: "DISCONNECTED", Peer: cfg.Peer},
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetSession records the session state.
func (t *Tracker) SetSession(s Session) {
	t.mu.Lock()
	t.snap.Session = s
	t.mu.Unlock()
}

// SetReading records the newest decoded Reading.
func (t *Tracker) SetReading(r logic.Reading, at time.Time) {
	t.mu.Lock()
	t.snap.Latest = r
	t.snap.LatestAt = at
	t.snap.HaveReading = true
	t.mu.Unlock()
}

// SetCounts records the packet counters.
func (t *Tracker) SetCounts(received, rejected uint64) {
	t.mu.Lock()
	t.snap.Received = received
	t.snap.Rejected = rejected
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the gateway state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
