package internal

import (
	"context"
	"testing"
	"time"

	"github.com/sweeney/respiration-monitor/internal/buzzer"
	"github.com/sweeney/respiration-monitor/internal/client"
	"github.com/sweeney/respiration-monitor/internal/device"
	"github.com/sweeney/respiration-monitor/internal/gpio"
	"github.com/sweeney/respiration-monitor/internal/link"
	"github.com/sweeney/respiration-monitor/internal/logic"
	"github.com/sweeney/respiration-monitor/internal/mqtt"
	"github.com/sweeney/respiration-monitor/internal/sensor"
	"github.com/sweeney/respiration-monitor/internal/wire"
)

const tagAddr = "C8:2B:96:AA:BB:CC"

var startTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// airwaves is an in-memory radio joining a device-side FakePeripheral and a
// client.Central. Notifications only reach the client while it is connected.
type airwaves struct {
	periph  *link.FakePeripheral
	handler client.Handlers
	dials   int
}

func (a *airwaves) Scan(ctx context.Context) (string, error) {
	return tagAddr, nil
}

func (a *airwaves) Connect(ctx context.Context, peer string, h client.Handlers) (client.Conn, error) {
	a.dials++
	a.handler = h
	a.periph.OnNotify = h.Notify
	a.periph.OnDrop = func(string) {
		a.periph.OnNotify = nil
		if h.Disconnected != nil {
			h.Disconnected()
		}
	}
	a.periph.Connect(peer)
	return &airConn{air: a, peer: peer}, nil
}

// drop simulates the link going out of range.
func (a *airwaves) drop() {
	a.periph.OnNotify = nil
	a.periph.Disconnect(tagAddr)
	if a.handler.Disconnected != nil {
		a.handler.Disconnected()
	}
}

type airConn struct {
	air  *airwaves
	peer string
}

func (c *airConn) Write(p []byte) error {
	c.air.periph.Write(p)
	return nil
}

func (c *airConn) Disconnect() error {
	c.air.periph.OnNotify = nil
	c.air.periph.Disconnect(c.peer)
	return nil
}

// rig is a tag and a client gateway sharing one radio. The device is stepped
// by hand; the client reconnect clock is advanced by hand.
type rig struct {
	t     *testing.T
	now   time.Time
	ctrl  *device.Controller
	gas   *sensor.FakeGas
	out   *buzzer.FakeOutput
	act   *buzzer.Actuator
	radio *link.FakePeripheral
	air   *airwaves
	clock *client.FakeClock
	store *client.FakePeerStore
	mgr   *client.Manager
	pub   *mqtt.FakePublisher
}

func newRig(t *testing.T, format wire.Format) *rig {
	t.Helper()
	r := &rig{
		t:     t,
		now:   startTime,
		gas:   sensor.NewFakeGas(sensor.GasSample{PPM: 800}),
		out:   buzzer.NewFakeOutput(),
		radio: link.NewFakePeripheral(),
		clock: client.NewFakeClock(startTime),
		store: &client.FakePeerStore{},
		pub:   mqtt.NewFakePublisher(),
	}
	r.air = &airwaves{periph: r.radio}

	btn := gpio.NewFakeReader(false)
	climate := sensor.NewFakeClimate(sensor.ClimateSample{Humidity: 62, Temperature: 32.5})
	r.act = buzzer.NewActuator(r.out, buzzer.DefaultCadence, buzzer.DefaultMaxToggles)
	lcfg := link.DefaultConfig
	lcfg.Format = format
	r.ctrl = device.New(device.DefaultConfig, device.Deps{
		Button:  btn,
		Waker:   btn,
		Sensors: sensor.NewUnit(climate, r.gas, sensor.DefaultConfig, startTime),
		Engine:  logic.NewAlertEngine(logic.DefaultThresholds),
		Buzzer:  r.act,
		Link:    link.New(r.radio, lcfg),
	})

	r.mgr = client.NewManager(r.air, r.clock, r.store, client.DefaultConfig, client.Hooks{
		OnReading: func(peer string, rd logic.Reading) {
			r.pub.PublishReading(peer, rd, r.clock.Now())
		},
	})
	return r
}

func (r *rig) step(d time.Duration) {
	r.now = r.now.Add(d)
	r.ctrl.Step(context.Background(), r.now)
}

// boot wakes the tag and runs it until it is reading sensors.
func (r *rig) boot() {
	r.t.Helper()
	r.ctrl.Wake()
	for i := 0; i < 5 && r.ctrl.State() != device.StateReadingSensors; i++ {
		r.step(10 * time.Millisecond)
	}
	if r.ctrl.State() != device.StateReadingSensors {
		r.t.Fatalf("tag did not boot, state %s", r.ctrl.State())
	}
}

// connect connects the client and lets the tag observe it.
func (r *rig) connect() {
	r.t.Helper()
	if err := r.mgr.Connect(context.Background(), ""); err != nil {
		r.t.Fatalf("connect: %v", err)
	}
	r.step(10 * time.Millisecond)
}

// cycle steps the tag until it notifies one more Reading.
func (r *rig) cycle() {
	r.t.Helper()
	before := len(r.radio.Payloads())
	for i := 0; i < 20; i++ {
		r.step(250 * time.Millisecond)
		if len(r.radio.Payloads()) > before {
			return
		}
	}
	r.t.Fatal("tag sent no reading")
}

func (r *rig) latest() logic.Reading {
	r.t.Helper()
	rd, ok := r.mgr.History().Latest()
	if !ok {
		r.t.Fatal("client has no reading")
	}
	return rd
}

// TestIntegrationReadingReachesClient tests the flow from the sensors through
// the radio to the client history and MQTT.
func TestIntegrationReadingReachesClient(t *testing.T) {
	r := newRig(t, wire.FormatJSON)
	r.boot()
	r.connect()

	if state, _ := r.mgr.State(); state != client.Connected {
		t.Fatalf("client state: got %s, want CONNECTED", state)
	}
	if r.radio.IsAdvertising() {
		t.Error("tag should stop advertising once connected")
	}
	if r.store.Peer != tagAddr {
		t.Errorf("stored peer: got %q", r.store.Peer)
	}

	r.cycle()

	rd := r.latest()
	if rd.CO2PPM != 800 || rd.HumidityPct != 62 || rd.TemperatureC != 32.5 || rd.Alert != logic.AlertNone {
		t.Errorf("reading: %+v", rd)
	}
	if r.pub.ReadingCount() != 1 {
		t.Fatalf("mqtt readings: got %d, want 1", r.pub.ReadingCount())
	}
	if r.pub.Readings[0].Peer != tagAddr {
		t.Errorf("mqtt peer: got %q", r.pub.Readings[0].Peer)
	}
}

func TestIntegrationBinaryEncoding(t *testing.T) {
	r := newRig(t, wire.FormatBinary)
	r.boot()
	r.connect()

	r.cycle()
	first := r.latest()
	r.cycle()
	second := r.latest()

	if len(r.radio.Payloads()[0]) != wire.BinarySize {
		t.Fatalf("payload size: got %d", len(r.radio.Payloads()[0]))
	}
	if first.CO2PPM != 800 || first.HumidityPct != 62 {
		t.Errorf("reading: %+v", first)
	}
	if second.Sequence != first.Sequence+1 {
		t.Errorf("sequence: got %d then %d", first.Sequence, second.Sequence)
	}
	if stats := r.mgr.Stats(); stats.Received != 2 || stats.Rejected != 0 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestIntegrationAlertAndRemoteMute(t *testing.T) {
	r := newRig(t, wire.FormatJSON)
	r.gas.SetPPM(12000)
	r.boot()
	r.connect()

	r.cycle()

	rd := r.latest()
	if rd.Alert != logic.AlertHigh {
		t.Fatalf("alert: got %s, want HIGH", rd.Alert)
	}
	if !r.out.Sounding {
		t.Fatal("buzzer should be sounding")
	}

	if err := r.mgr.SetMute(true); err != nil {
		t.Fatalf("mute: %v", err)
	}
	r.step(10 * time.Millisecond)

	if !r.act.Muted() || r.out.Sounding {
		t.Error("tag should be muted after the command")
	}

	// JSON readings carry no status flags, so check the tag side
	r.cycle()
	if r.latest().Alert != logic.AlertHigh {
		t.Errorf("alert level should persist while muted, got %s", r.latest().Alert)
	}
	if r.out.Sounding {
		t.Error("buzzer should stay silent while muted")
	}
}

func TestIntegrationStatusFlagsOverBinary(t *testing.T) {
	r := newRig(t, wire.FormatBinary)
	r.gas.SetPPM(12000)
	r.boot()
	r.connect()

	r.cycle()
	if rd := r.latest(); !rd.Status.Has(logic.StatusSounding) || rd.Status.Has(logic.StatusMuted) {
		t.Fatalf("status before mute: %08b", rd.Status)
	}

	r.mgr.SetMute(true)
	r.cycle()
	if rd := r.latest(); !rd.Status.Has(logic.StatusMuted) || rd.Status.Has(logic.StatusSounding) {
		t.Errorf("status after mute: %08b", rd.Status)
	}
}

func TestIntegrationVolume(t *testing.T) {
	r := newRig(t, wire.FormatJSON)
	r.boot()
	r.connect()

	if err := r.mgr.SetVolume(30); err != nil {
		t.Fatalf("volume: %v", err)
	}
	r.step(10 * time.Millisecond)

	if r.act.Volume() != 30 {
		t.Errorf("volume: got %d, want 30", r.act.Volume())
	}
}

func TestIntegrationResetAlertsReEscalates(t *testing.T) {
	r := newRig(t, wire.FormatJSON)
	r.gas.SetPPM(12000)
	r.boot()
	r.connect()

	r.cycle()
	r.mgr.SetMute(true)
	r.step(10 * time.Millisecond)

	if err := r.mgr.Send(logic.Command{Kind: logic.CmdResetAlerts}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	r.step(10 * time.Millisecond)
	if r.act.Muted() {
		t.Error("reset should unmute")
	}

	r.cycle()
	if !r.out.Sounding {
		t.Error("alert should sound again after reset while CO2 stays high")
	}
}

func TestIntegrationPowerOff(t *testing.T) {
	r := newRig(t, wire.FormatJSON)
	r.boot()
	r.connect()

	if err := r.mgr.PowerOff(); err != nil {
		t.Fatalf("power off: %v", err)
	}
	r.step(10 * time.Millisecond)
	r.step(10 * time.Millisecond)

	if r.ctrl.State() != device.StateSleeping {
		t.Fatalf("tag state: got %s, want SLEEPING", r.ctrl.State())
	}
	if r.radio.IsAdvertising() {
		t.Error("sleeping tag must not advertise")
	}
	if r.radio.AttachedCentral() != "" {
		t.Error("sleeping tag must drop the client")
	}
	if state, session := r.mgr.State(); state != client.Disconnected || session.Attempts != 1 {
		t.Errorf("client after power off: %s attempts=%d, want DISCONNECTED attempts=1", state, session.Attempts)
	}
}

func TestIntegrationReconnectAfterLinkLoss(t *testing.T) {
	r := newRig(t, wire.FormatJSON)
	r.boot()
	r.connect()
	r.cycle()

	r.air.drop()
	r.step(10 * time.Millisecond)

	if state, session := r.mgr.State(); state != client.Disconnected || session.Attempts != 1 {
		t.Fatalf("after drop: %s attempts=%d", state, session.Attempts)
	}
	if !r.radio.IsAdvertising() {
		t.Fatal("tag should advertise again after the drop")
	}

	// Readings sent while disconnected never reach the client
	r.cycle()
	if got := r.mgr.History().Len(); got != 1 {
		t.Errorf("history while disconnected: got %d, want 1", got)
	}

	r.clock.Advance(2 * time.Second)
	if r.air.dials != 2 {
		t.Fatalf("dials: got %d, want 2", r.air.dials)
	}
	if state, session := r.mgr.State(); state != client.Connected || session.Attempts != 0 {
		t.Fatalf("after reconnect: %s attempts=%d", state, session.Attempts)
	}

	r.step(10 * time.Millisecond)
	r.cycle()
	if got := r.mgr.History().Len(); got != 2 {
		t.Errorf("history after reconnect: got %d, want 2", got)
	}
}

func TestIntegrationMalformedNotificationKeepsSession(t *testing.T) {
	r := newRig(t, wire.FormatJSON)
	r.boot()
	r.connect()

	r.radio.Notify([]byte(`{"co2":800,"humidity":140,"temperature":20,"alert":0,"timestamp":1}`))
	r.radio.Notify([]byte{0xde, 0xad})

	if stats := r.mgr.Stats(); stats.Rejected != 2 {
		t.Errorf("rejected: got %d, want 2", stats.Rejected)
	}
	if state, _ := r.mgr.State(); state != client.Connected {
		t.Errorf("state: got %s, want CONNECTED", state)
	}

	r.cycle()
	if r.mgr.History().Len() != 1 {
		t.Error("valid readings should still be accepted")
	}
}

func TestIntegrationUserDisconnect(t *testing.T) {
	r := newRig(t, wire.FormatJSON)
	r.boot()
	r.connect()

	if err := r.mgr.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	r.step(10 * time.Millisecond)
	r.clock.Advance(time.Minute)

	if r.air.dials != 1 {
		t.Errorf("user disconnect must not reconnect, dials=%d", r.air.dials)
	}
	if !r.radio.IsAdvertising() {
		t.Error("tag should advertise after the client leaves")
	}
	if r.store.Peer != "" {
		t.Errorf("stored peer should be cleared, got %q", r.store.Peer)
	}
}
