// Package mqtt bridges decoded tag telemetry and session changes to an MQTT
// broker, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/respiration-monitor/internal/logic"
)

// TopicPrefix is the root of every topic published by the client.
const TopicPrefix = "respiration/tag"

// TopicSession is the MQTT topic for session lifecycle events.
const TopicSession = TopicPrefix + "/session"

// ReadingTopic returns the reading topic for a tag address. Separators are
// dropped so the address forms a single topic level.
func ReadingTopic(peer string) string {
	id := strings.ToLower(strings.NewReplacer(":", "", "/", "", "+", "", "#", "").Replace(peer))
	if id == "" {
		id = "unknown"
	}
	return TopicPrefix + "/" + id + "/reading"
}

// Publisher publishes telemetry to MQTT.
type Publisher interface {
	// PublishReading sends a decoded Reading from peer, received at at.
	// Returns error if publishing fails (should not crash the process).
	PublishReading(peer string, r logic.Reading, at time.Time) error

	// PublishSession sends a session lifecycle event.
	PublishSession(event SessionEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SessionEvent is a client lifecycle or link event (e.g. STARTUP, CONNECTED,
// DISCONNECTED, SHUTDOWN).
type SessionEvent struct {
	Timestamp  time.Time
	Event      string
	State      string // connection state after the event
	Peer       string
	Attempts   int
	Reason     string // e.g. "SIGTERM" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSessionPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// ReadingPayload is the MQTT message payload for a Reading.
type ReadingPayload struct {
	Reading ReadingInner `json:"reading"`
}

// ReadingInner contains the Reading details.
type ReadingInner struct {
	Timestamp    string  `json:"timestamp"`
	Peer         string  `json:"peer"`
	CO2PPM       float64 `json:"co2_ppm"`
	HumidityPct  float64 `json:"humidity_pct"`
	TemperatureC float64 `json:"temperature_c"`
	Alert        string  `json:"alert"`
	AlertLevel   int     `json:"alert_level"`
	Muted        bool    `json:"muted"`
	Sounding     bool    `json:"sounding"`
	Stale        bool    `json:"stale"`
	Sequence     uint32  `json:"sequence,omitempty"`
	UptimeMs     int64   `json:"uptime_ms"`
}

// FormatReadingPayload creates the JSON payload for a Reading.
func FormatReadingPayload(peer string, r logic.Reading, at time.Time) ([]byte, error) {
	payload := ReadingPayload{
		Reading: ReadingInner{
			Timestamp:    at.UTC().Format(time.RFC3339),
			Peer:         peer,
			CO2PPM:       r.CO2PPM,
			HumidityPct:  r.HumidityPct,
			TemperatureC: r.TemperatureC,
			Alert:        r.Alert.String(),
			AlertLevel:   int(r.Alert),
			Muted:        r.Status.Has(logic.StatusMuted),
			Sounding:     r.Status.Has(logic.StatusSounding),
			Stale:        r.Status.Has(logic.StatusStale),
			Sequence:     r.Sequence,
			UptimeMs:     r.Uptime.Milliseconds(),
		},
	}
	return json.Marshal(payload)
}

// SessionPayload is the MQTT message payload for simple session events
// (LWT, RECONNECTED) that don't carry a full status snapshot.
type SessionPayload struct {
	Session SessionPayloadInner `json:"session"`
}

// SessionPayloadInner contains the session event details.
type SessionPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	State     string `json:"state,omitempty"`
	Peer      string `json:"peer,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSessionPayload creates the JSON payload for a session event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSessionPayload(event SessionEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SessionPayload{
		Session: SessionPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			State:     event.State,
			Peer:      event.Peer,
			Attempts:  event.Attempts,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
