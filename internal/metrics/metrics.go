// Package metrics exposes client gateway counters and gauges for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/respiration-monitor/internal/logic"
)

// Metrics holds the gateway collectors. Each Metrics owns its registry so
// tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	packets      *prometheus.CounterVec
	sessionState *prometheus.GaugeVec
	attempts     prometheus.Gauge
	commands     *prometheus.CounterVec
	co2          prometheus.Gauge
	humidity     prometheus.Gauge
	temperature  prometheus.Gauge
	alertLevel   prometheus.Gauge
}

// sessionStates are the label values of tag_session_state.
var sessionStates = []string{"DISCONNECTED", "CONNECTING", "CONNECTED", "DISCONNECTING"}

// New creates and registers the gateway collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tag_packets_total",
			Help: "Notification payloads from the tag by outcome (accepted, rejected).",
		}, []string{"result"}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tag_session_state",
			Help: "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		attempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tag_reconnect_attempts",
			Help: "Reconnect attempts since the last successful connection.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tag_commands_total",
			Help: "Commands written to the tag by kind and outcome.",
		}, []string{"command", "result"}),
		co2: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tag_co2_ppm",
			Help: "Most recent CO2 concentration reported by the tag.",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tag_humidity_percent",
			Help: "Most recent relative humidity reported by the tag.",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tag_temperature_celsius",
			Help: "Most recent temperature reported by the tag.",
		}),
		alertLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tag_alert_level",
			Help: "Most recent alert level (0 none .. 4 critical).",
		}),
	}

	m.registry.MustRegister(
		m.packets,
		m.sessionState,
		m.attempts,
		m.commands,
		m.co2,
		m.humidity,
		m.temperature,
		m.alertLevel,
	)

	m.packets.WithLabelValues("accepted").Add(0)
	m.packets.WithLabelValues("rejected").Add(0)
	m.SetSessionState("DISCONNECTED", 0)

	return m
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveReading records an accepted Reading.
func (m *Metrics) ObserveReading(r logic.Reading) {
	m.packets.WithLabelValues("accepted").Inc()
	m.co2.Set(r.CO2PPM)
	m.humidity.Set(r.HumidityPct)
	m.temperature.Set(r.TemperatureC)
	m.alertLevel.Set(float64(r.Alert))
}

// ObserveRejected records a payload that failed decoding.
func (m *Metrics) ObserveRejected() {
	m.packets.WithLabelValues("rejected").Inc()
}

// SetSessionState marks state as current and records the attempt count.
func (m *Metrics) SetSessionState(state string, attempts int) {
	for _, s := range sessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.sessionState.WithLabelValues(s).Set(v)
	}
	m.attempts.Set(float64(attempts))
}

// ObserveCommand records a command write and whether it succeeded.
func (m *Metrics) ObserveCommand(kind logic.CommandKind, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(kind.String(), result).Inc()
}
