package link

import (
	"testing"
	"time"

	"github.com/sweeney/respiration-monitor/internal/logic"
	"github.com/sweeney/respiration-monitor/internal/wire"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func startedLink(t *testing.T, cfg Config) (*Link, *FakePeripheral) {
	t.Helper()
	radio := NewFakePeripheral()
	l := New(radio, cfg)
	if err := l.Start(testStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	return l, radio
}

func TestStartAdvertises(t *testing.T) {
	_, radio := startedLink(t, DefaultConfig)
	if !radio.Opened || !radio.IsAdvertising() {
		t.Errorf("expected opened and advertising, got opened=%v advertising=%v", radio.Opened, radio.Advertising)
	}
}

func TestStartOpensOnce(t *testing.T) {
	l, radio := startedLink(t, DefaultConfig)
	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}
	radio.OpenError = errTest
	if err := l.Start(testStart.Add(time.Minute)); err != nil {
		t.Fatalf("restart should not reopen: %v", err)
	}
	if radio.AdvertiseCalls != 2 {
		t.Errorf("advertise calls: got %d, want 2", radio.AdvertiseCalls)
	}
}

func TestConnectStopsAdvertising(t *testing.T) {
	l, radio := startedLink(t, DefaultConfig)

	radio.Connect("AA:BB:CC:DD:EE:FF")
	if l.Connected() {
		t.Fatal("connection must not be observed before Poll")
	}
	l.Poll()

	if !l.Connected() {
		t.Fatal("expected connected after Poll")
	}
	if l.Peer() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("peer: got %q", l.Peer())
	}
	if radio.IsAdvertising() {
		t.Error("advertising should stop once a peer connects")
	}
}

func TestDisconnectRestartsAdvertising(t *testing.T) {
	l, radio := startedLink(t, DefaultConfig)
	radio.Connect("peer")
	l.Poll()

	radio.Disconnect("peer")
	l.Poll()

	if l.Connected() {
		t.Error("expected disconnected")
	}
	if !radio.IsAdvertising() {
		t.Error("advertising should restart after disconnect")
	}
}

func TestCommandsQueuedInOrder(t *testing.T) {
	l, radio := startedLink(t, DefaultConfig)

	radio.Write([]byte(`{"cmd":"mute","value":true}`))
	radio.Write([]byte(`{"cmd":"volume","value":40}`))
	l.Poll()

	cmd, ok := l.TakeCommand()
	if !ok || cmd != logic.Mute(true) {
		t.Fatalf("first command: got %s, %v", cmd, ok)
	}
	cmd, ok = l.TakeCommand()
	if !ok || cmd != logic.SetVolume(40) {
		t.Fatalf("second command: got %s, %v", cmd, ok)
	}
	if _, ok := l.TakeCommand(); ok {
		t.Error("queue should be empty")
	}
}

func TestMalformedCommandsDropped(t *testing.T) {
	l, radio := startedLink(t, DefaultConfig)

	radio.Write([]byte{9})
	radio.Write([]byte(`{"cmd":"volume","value":300}`))
	radio.Write([]byte{3})
	l.Poll()

	cmd, ok := l.TakeCommand()
	if !ok || cmd.Kind != logic.CmdRequestData {
		t.Fatalf("got %s, %v; want REQUEST_DATA", cmd, ok)
	}
	if _, ok := l.TakeCommand(); ok {
		t.Error("malformed commands should not be queued")
	}
}

func TestWritePayloadIsCopied(t *testing.T) {
	l, radio := startedLink(t, DefaultConfig)

	buf := []byte("4")
	radio.Write(buf)
	buf[0] = '9'
	l.Poll()

	cmd, ok := l.TakeCommand()
	if !ok || cmd.Kind != logic.CmdResetAlerts {
		t.Errorf("got %s, %v; want RESET_ALERTS", cmd, ok)
	}
}

func TestDeliverNeverBlocks(t *testing.T) {
	cfg := DefaultConfig
	cfg.QueueSize = 2
	l, radio := startedLink(t, cfg)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			radio.Write([]byte{1})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a full queue")
	}

	l.Poll()
	n := 0
	for {
		if _, ok := l.TakeCommand(); !ok {
			break
		}
		n++
	}
	if n != 2 {
		t.Errorf("queued commands: got %d, want 2", n)
	}
}

func TestAdvertisingWindow(t *testing.T) {
	l, _ := startedLink(t, DefaultConfig)

	if l.AdvertisingExpired(testStart.Add(30 * time.Second)) {
		t.Error("window should still be open at exactly 30s")
	}
	if !l.AdvertisingExpired(testStart.Add(31 * time.Second)) {
		t.Error("window should be closed after 30s")
	}

	if err := l.Start(testStart.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if l.AdvertisingExpired(testStart.Add(time.Hour + time.Second)) {
		t.Error("restart should reopen the window")
	}
}

func TestSendEncodesFormat(t *testing.T) {
	r := logic.Reading{CO2PPM: 1200, HumidityPct: 50, TemperatureC: 22, Alert: logic.AlertLow, Sequence: 5}

	for _, f := range []wire.Format{wire.FormatJSON, wire.FormatBinary} {
		t.Run(f.String(), func(t *testing.T) {
			cfg := DefaultConfig
			cfg.Format = f
			l, radio := startedLink(t, cfg)

			if err := l.Send(r); err != nil {
				t.Fatalf("send: %v", err)
			}
			payloads := radio.Payloads()
			if len(payloads) != 1 {
				t.Fatalf("expected 1 notification, got %d", len(payloads))
			}
			if got := wire.Sniff(payloads[0]); got != f {
				t.Errorf("format: got %s, want %s", got, f)
			}
			out, err := wire.Decode(payloads[0])
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out.CO2PPM != 1200 || out.Alert != logic.AlertLow {
				t.Errorf("decoded: %+v", out)
			}
		})
	}
}

func TestSendPropagatesNotifyError(t *testing.T) {
	l, radio := startedLink(t, DefaultConfig)
	radio.NotifyError = errTest
	if err := l.Send(logic.Reading{}); err == nil {
		t.Error("expected error")
	}
}

func TestStopDiscardsPending(t *testing.T) {
	l, radio := startedLink(t, DefaultConfig)
	radio.Connect("peer")
	radio.Write([]byte{1})

	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}

	if l.Connected() {
		t.Error("expected disconnected after Stop")
	}
	if _, ok := l.TakeCommand(); ok {
		t.Error("pending commands should be discarded")
	}
	if radio.IsAdvertising() {
		t.Error("expected advertising stopped")
	}
}

func TestStopDropsPeer(t *testing.T) {
	l, radio := startedLink(t, DefaultConfig)
	radio.Connect("peer")
	l.Poll()

	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}
	if radio.Drops != 1 || radio.AttachedCentral() != "" {
		t.Errorf("expected the peer dropped, drops=%d central=%q", radio.Drops, radio.AttachedCentral())
	}
	if radio.IsAdvertising() || radio.AdvertiseCalls != 1 {
		t.Errorf("the drop must not restart advertising, calls=%d", radio.AdvertiseCalls)
	}

	// The disconnect raised by the drop is not replayed after wake
	if err := l.Start(testStart.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	l.Poll()
	if l.Connected() || radio.AdvertiseCalls != 2 {
		t.Errorf("after restart: connected=%v advertise calls=%d", l.Connected(), radio.AdvertiseCalls)
	}
}

func TestStopWithoutPeer(t *testing.T) {
	l, radio := startedLink(t, DefaultConfig)
	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}
	if radio.Drops != 0 {
		t.Errorf("drops: got %d, want 0", radio.Drops)
	}
}

func TestOpen(t *testing.T) {
	radio := NewFakePeripheral()
	radio.OpenError = errTest
	l := New(radio, DefaultConfig)

	if err := l.Open(); err == nil {
		t.Fatal("expected open error")
	}
	if err := l.Start(testStart); err == nil {
		t.Fatal("start must fail while the radio cannot open")
	}

	radio.OpenError = nil
	if err := l.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if !radio.Opened || radio.IsAdvertising() {
		t.Errorf("open must not advertise: opened=%v advertising=%v", radio.Opened, radio.Advertising)
	}
	radio.OpenError = errTest
	if err := l.Open(); err != nil {
		t.Errorf("second open should be a no-op: %v", err)
	}
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("radio failure")
