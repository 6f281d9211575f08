package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/respiration-monitor/internal/client"
	"github.com/sweeney/respiration-monitor/internal/logic"
	"github.com/sweeney/respiration-monitor/internal/metrics"
	"github.com/sweeney/respiration-monitor/internal/mqtt"
	"github.com/sweeney/respiration-monitor/internal/peerstore"
	"github.com/sweeney/respiration-monitor/internal/status"
	"github.com/sweeney/respiration-monitor/internal/web"
)

var testNow = time.Date(2026, 7, 14, 9, 30, 0, 0, time.UTC)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" || info.Type != "" || info.IP != "" || info.SSID != "" {
		t.Errorf("unexpected info: %+v", info)
	}
}

// --- bridge tests ---

func newTestBridge() (*bridge, *mqtt.FakePublisher) {
	pub := mqtt.NewFakePublisher()
	b := &bridge{
		publisher:  pub,
		mqttStatus: pub,
		tracker:    status.NewTracker(testNow, status.Config{Broker: "tcp://localhost:1883"}),
		metrics:    metrics.New(),
		hub:        web.NewHub(),
		now:        func() time.Time { return testNow },
	}
	return b, pub
}

func TestBridgeReading(t *testing.T) {
	b, pub := newTestBridge()
	r := logic.Reading{CO2PPM: 5200, HumidityPct: 50, TemperatureC: 31, Alert: logic.AlertMedium}

	b.onReading("C8:2B:96:11:22:33", r)

	if pub.ReadingCount() != 1 {
		t.Fatalf("published readings: got %d, want 1", pub.ReadingCount())
	}
	if got := pub.Readings[0]; got.Peer != "C8:2B:96:11:22:33" || !got.At.Equal(testNow) || got.Reading != r {
		t.Errorf("published: %+v", got)
	}

	snap := b.tracker.Snapshot()
	if !snap.HaveReading || snap.Latest != r || snap.Received != 1 {
		t.Errorf("tracker: latest=%+v received=%d", snap.Latest, snap.Received)
	}
}

func TestBridgeReadingPublishErrorKeepsState(t *testing.T) {
	b, pub := newTestBridge()
	pub.PublishError = errors.New("broker down")

	b.onReading("AA:BB", logic.Reading{CO2PPM: 900})

	if snap := b.tracker.Snapshot(); !snap.HaveReading {
		t.Error("tracker should record the reading despite publish failure")
	}
}

func TestBridgeReject(t *testing.T) {
	b, _ := newTestBridge()

	b.onReading("AA:BB", logic.Reading{CO2PPM: 900})
	b.onReject("AA:BB", errors.New("malformed"))
	b.onReject("AA:BB", errors.New("malformed"))

	snap := b.tracker.Snapshot()
	if snap.Received != 1 || snap.Rejected != 2 {
		t.Errorf("counts: received=%d rejected=%d, want 1/2", snap.Received, snap.Rejected)
	}
}

func TestBridgeState(t *testing.T) {
	b, pub := newTestBridge()

	b.onState(client.Connected, client.SessionDescriptor{PeerID: "AA:BB", LastKnownGood: testNow})

	snap := b.tracker.Snapshot()
	if snap.Session.State != "CONNECTED" || snap.Session.Peer != "AA:BB" || !snap.Session.LastConnected.Equal(testNow) {
		t.Errorf("session: %+v", snap.Session)
	}

	if got := pub.Events(); !reflect.DeepEqual(got, []string{"CONNECTED"}) {
		t.Fatalf("events: got %v", got)
	}
	ev := pub.SessionEvents[0]
	if !ev.Retained || ev.Peer != "AA:BB" || ev.State != "CONNECTED" {
		t.Errorf("event: %+v", ev)
	}
}

func TestPublishStatusEvent(t *testing.T) {
	b, pub := newTestBridge()
	pub.Connected = true

	b.publishStatusEvent("STARTUP", "")

	if len(pub.SessionEvents) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.SessionEvents))
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(pub.SessionPayloads[0], &sj); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if sj.Status.Event != "STARTUP" || !sj.Status.MQTT.Connected {
		t.Errorf("status: %+v", sj.Status)
	}
}

// --- runLoop tests ---

type fakeSession struct {
	connects  []string
	resumes   int
	closed    int
	resumeErr error
	connErr   error
}

func (f *fakeSession) Connect(ctx context.Context, peer string) error {
	f.connects = append(f.connects, peer)
	return f.connErr
}

func (f *fakeSession) Resume(ctx context.Context) error {
	f.resumes++
	return f.resumeErr
}

func (f *fakeSession) Close() error {
	f.closed++
	return nil
}

func runRunLoop(t *testing.T, s session, b *bridge, ticks int, sg os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- runLoop(s, b, tick, sig) }()

	for i := 0; i < ticks; i++ {
		tick <- testNow
	}
	sig <- sg

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return")
	}
	return nil
}

func TestRunLoopShutdown(t *testing.T) {
	for _, tt := range []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
	} {
		t.Run(tt.want, func(t *testing.T) {
			b, pub := newTestBridge()
			s := &fakeSession{}

			if err := runRunLoop(t, s, b, 0, tt.sig); err != nil {
				t.Fatalf("runLoop returned error: %v", err)
			}

			if s.closed != 1 {
				t.Errorf("session closed %d times, want 1", s.closed)
			}
			if len(pub.SessionEvents) != 1 {
				t.Fatalf("expected 1 session event, got %d", len(pub.SessionEvents))
			}
			se := pub.SessionEvents[0]
			if se.Event != "SHUTDOWN" || se.Reason != tt.want || !se.Retained {
				t.Errorf("event: %+v", se)
			}
		})
	}
}

func TestRunLoopShutdownPublishError(t *testing.T) {
	b, pub := newTestBridge()
	pub.PublishSessionError = errors.New("broker down")

	if err := runRunLoop(t, &fakeSession{}, b, 0, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop should not fail on publish errors: %v", err)
	}
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.42")
	t.Setenv(envNetworkWifiSSID, "HomeNet")

	b, pub := newTestBridge()
	if err := runRunLoop(t, &fakeSession{}, b, 2, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if got := pub.Events(); !reflect.DeepEqual(got, []string{"HEARTBEAT", "HEARTBEAT", "SHUTDOWN"}) {
		t.Fatalf("events: got %v", got)
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(pub.SessionPayloads[0], &sj); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if sj.Status.Network == nil {
		t.Fatal("HEARTBEAT event missing network info")
	}
	if sj.Status.Network.IP != "192.168.1.42" || sj.Status.Network.SSID != "HomeNet" {
		t.Errorf("network: %+v", sj.Status.Network)
	}
}

// --- connectInitial tests ---

func TestConnectInitialExplicitPeer(t *testing.T) {
	s := &fakeSession{}
	connectInitial(context.Background(), s, "AA:BB")

	if s.resumes != 0 || !reflect.DeepEqual(s.connects, []string{"AA:BB"}) {
		t.Errorf("resumes=%d connects=%v", s.resumes, s.connects)
	}
}

func TestConnectInitialResumesStoredPeer(t *testing.T) {
	s := &fakeSession{}
	connectInitial(context.Background(), s, "")

	if s.resumes != 1 || len(s.connects) != 0 {
		t.Errorf("resumes=%d connects=%v", s.resumes, s.connects)
	}
}

func TestConnectInitialScansWithoutStoredPeer(t *testing.T) {
	s := &fakeSession{resumeErr: fmt.Errorf("load peer: %w", peerstore.ErrNotFound)}
	connectInitial(context.Background(), s, "")

	if !reflect.DeepEqual(s.connects, []string{""}) {
		t.Errorf("expected a scan connect, got %v", s.connects)
	}
}

func TestConnectInitialOtherResumeErrorDoesNotScan(t *testing.T) {
	s := &fakeSession{resumeErr: errors.New("page timeout")}
	connectInitial(context.Background(), s, "")

	if len(s.connects) != 0 {
		t.Errorf("unexpected connects: %v", s.connects)
	}
}
