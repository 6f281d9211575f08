package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sweeney/respiration-monitor/internal/logic"
)

// LiveMessage is pushed to WebSocket viewers for every accepted Reading and
// every session state change.
type LiveMessage struct {
	Type    string       `json:"type"` // "reading" or "session"
	Reading *ReadingJSON `json:"reading,omitempty"`
	Session *SessionJSON `json:"session,omitempty"`
}

// ReadingJSON is one Reading as served to browsers.
type ReadingJSON struct {
	Timestamp    string  `json:"timestamp,omitempty"`
	Peer         string  `json:"peer,omitempty"`
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

// SessionJSON is a session state change as served to browsers.
type SessionJSON struct {
	State    string `json:"state"`
	Peer     string `json:"peer,omitempty"`
	Attempts int    `json:"attempts"`
}

// HistoryJSON is the /history.json body.
type HistoryJSON struct {
	Count    int           `json:"count"`
	Readings []ReadingJSON `json:"readings"`
}

// CommandResult is the body returned by command endpoints.
type CommandResult struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

func readingJSON(r logic.Reading) ReadingJSON {
	return ReadingJSON{
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
	}
}

// FormatReadingMessage builds the live message for a Reading from peer.
func FormatReadingMessage(peer string, r logic.Reading, at time.Time) []byte {
	rj := readingJSON(r)
	rj.Timestamp = at.UTC().Format(time.RFC3339)
	rj.Peer = peer
	data, _ := json.Marshal(LiveMessage{Type: "reading", Reading: &rj})
	return data
}

// FormatSessionMessage builds the live message for a session state change.
func FormatSessionMessage(state, peer string, attempts int) []byte {
	data, _ := json.Marshal(LiveMessage{
		Type:    "session",
		Session: &SessionJSON{State: state, Peer: peer, Attempts: attempts},
	})
	return data
}

func formatHistory(readings []logic.Reading) HistoryJSON {
	h := HistoryJSON{Count: len(readings), Readings: make([]ReadingJSON, 0, len(readings))}
	for _, r := range readings {
		h.Readings = append(h.Readings, readingJSON(r))
	}
	return h
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
