package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/sweeney/respiration-monitor/internal/logic"
)

// value returns the value of the named series whose labels match.
func value(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if !matches(metric, labels) {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	t.Fatalf("series %s%v not found", name, labels)
	return 0
}

func matches(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
			return false
		}
	}
	return true
}

func TestObserveReading(t *testing.T) {
	m := New()
	m.ObserveReading(logic.Reading{CO2PPM: 5200, HumidityPct: 48.5, TemperatureC: 30.1, Alert: logic.AlertMedium})
	m.ObserveReading(logic.Reading{CO2PPM: 900})

	if got := value(t, m, "tag_packets_total", map[string]string{"result": "accepted"}); got != 2 {
		t.Errorf("accepted: got %v, want 2", got)
	}
	if got := value(t, m, "tag_co2_ppm", nil); got != 900 {
		t.Errorf("co2: got %v, want 900", got)
	}
	if got := value(t, m, "tag_alert_level", nil); got != 0 {
		t.Errorf("alert level: got %v, want 0", got)
	}
}

func TestObserveRejected(t *testing.T) {
	m := New()
	if got := value(t, m, "tag_packets_total", map[string]string{"result": "rejected"}); got != 0 {
		t.Errorf("rejected before: got %v, want 0", got)
	}
	m.ObserveRejected()
	m.ObserveRejected()
	if got := value(t, m, "tag_packets_total", map[string]string{"result": "rejected"}); got != 2 {
		t.Errorf("rejected: got %v, want 2", got)
	}
}

func TestSetSessionStateIsExclusive(t *testing.T) {
	m := New()
	if got := value(t, m, "tag_session_state", map[string]string{"state": "DISCONNECTED"}); got != 1 {
		t.Errorf("initial DISCONNECTED: got %v, want 1", got)
	}

	m.SetSessionState("CONNECTED", 2)

	for _, s := range sessionStates {
		want := 0.0
		if s == "CONNECTED" {
			want = 1
		}
		if got := value(t, m, "tag_session_state", map[string]string{"state": s}); got != want {
			t.Errorf("%s: got %v, want %v", s, got, want)
		}
	}
	if got := value(t, m, "tag_reconnect_attempts", nil); got != 2 {
		t.Errorf("attempts: got %v, want 2", got)
	}
}

func TestObserveCommand(t *testing.T) {
	m := New()
	m.ObserveCommand(logic.CmdMute, nil)
	m.ObserveCommand(logic.CmdMute, errors.New("not connected"))

	ok := value(t, m, "tag_commands_total", map[string]string{"command": logic.CmdMute.String(), "result": "ok"})
	failed := value(t, m, "tag_commands_total", map[string]string{"command": logic.CmdMute.String(), "result": "error"})
	if ok != 1 || failed != 1 {
		t.Errorf("commands: ok=%v error=%v, want 1/1", ok, failed)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	m := New()
	m.ObserveReading(logic.Reading{CO2PPM: 1234})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(string(body), "tag_co2_ppm 1234") {
		t.Errorf("exposition missing co2 gauge:\n%s", body)
	}
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveRejected()
	if got := value(t, b, "tag_packets_total", map[string]string{"result": "rejected"}); got != 0 {
		t.Errorf("registries should be independent, got %v", got)
	}
}
