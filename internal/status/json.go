package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/respiration-monitor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Session       SessionJSON  `json:"session"`
	Reading       *ReadingJSON `json:"reading,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"packet_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SessionJSON is the JSON representation of the tag session.
type SessionJSON struct {
	State         string `json:"state"`
	Peer          string `json:"peer,omitempty"`
	Attempts      int    `json:"attempts"`
	LastConnected string `json:"last_connected,omitempty"`
}

// ReadingJSON is the JSON representation of the newest Reading.
type ReadingJSON struct {
	ReceivedAt   string  `json:"received_at"`
	CO2PPM       float64 `json:"co2_ppm"`
	HumidityPct  float64 `json:"humidity_pct"`
	TemperatureC float64 `json:"temperature_c"`
	Alert        string  `json:"alert"`
	Muted        bool    `json:"muted"`
	Sounding     bool    `json:"sounding"`
	Stale        bool    `json:"stale"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of packet counts.
type CountsJSON struct {
	Received uint64 `json:"received"`
	Rejected uint64 `json:"rejected"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of gateway config.
type ConfigJSON struct {
	Peer        string `json:"peer,omitempty"`
	DBPath      string `json:"db_path"`
	HistorySize int    `json:"history_size"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	state := snap.Session.State
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		Session: SessionJSON{
			State:    state,
			Peer:     snap.Session.Peer,
			Attempts: snap.Session.Attempts,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON{Received: snap.Received, Rejected: snap.Rejected},
		Config: ConfigJSON{
			Peer:        snap.Config.Peer,
			DBPath:      snap.Config.DBPath,
			HistorySize: snap.Config.HistorySize,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if !snap.Session.LastConnected.IsZero() {
		inner.Session.LastConnected = snap.Session.LastConnected.UTC().Format(time.RFC3339)
	}
	if snap.HaveReading {
		r := snap.Latest
		inner.Reading = &ReadingJSON{
			ReceivedAt:   snap.LatestAt.UTC().Format(time.RFC3339),
			CO2PPM:       r.CO2PPM,
			HumidityPct:  r.HumidityPct,
			TemperatureC: r.TemperatureC,
			Alert:        r.Alert.String(),
			Muted:        r.Status.Has(logic.StatusMuted),
			Sounding:     r.Status.Has(logic.StatusSounding),
			Stale:        r.Status.Has(logic.StatusStale),
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT session event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
