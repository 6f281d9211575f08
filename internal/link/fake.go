package link

import "sync"

// FakePeripheral is a test double for the radio. Connect, Disconnect and
// Write simulate a central.
type FakePeripheral struct {
	mu sync.Mutex

	handler func(Event)

	// Opened tracks whether Open was called.
	Opened bool

	// Advertising reports whether the fake is currently advertising.
	Advertising bool

	// AdvertiseCalls counts calls to Advertise.
	AdvertiseCalls int

	// Central is the address of the attached central, if any.
	Central string

	// Drops counts centrals dropped by DisconnectPeer.
	Drops int

	// Notified contains every payload passed to Notify.
	Notified [][]byte

	// OnNotify, if set, receives each notified payload.
	OnNotify func([]byte)

	// OnDrop, if set, is told about centrals dropped by DisconnectPeer.
	OnDrop func(peer string)

	// OpenError, if set, will be returned by Open.
	OpenError error

	// NotifyError, if set, will be returned by Notify.
	NotifyError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePeripheral creates a FakePeripheral for testing.
func NewFakePeripheral() *FakePeripheral {
	return &FakePeripheral{}
}

func (f *FakePeripheral) Open(handler func(Event)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenError != nil {
		return f.OpenError
	}
	f.handler = handler
	f.Opened = true
	return nil
}

func (f *FakePeripheral) Advertise() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Advertising = true
	f.AdvertiseCalls++
	return nil
}

func (f *FakePeripheral) StopAdvertising() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Advertising = false
	return nil
}

func (f *FakePeripheral) DisconnectPeer() error {
	f.mu.Lock()
	peer := f.Central
	if peer == "" {
		f.mu.Unlock()
		return nil
	}
	f.Central = ""
	f.Drops++
	hook := f.OnDrop
	f.mu.Unlock()

	if hook != nil {
		hook(peer)
	}
	f.emit(Event{Kind: EventDisconnected, Peer: peer})
	return nil
}

func (f *FakePeripheral) Notify(p []byte) error {
	f.mu.Lock()
	if f.NotifyError != nil {
		f.mu.Unlock()
		return f.NotifyError
	}
	cp := append([]byte(nil), p...)
	f.Notified = append(f.Notified, cp)
	hook := f.OnNotify
	f.mu.Unlock()

	if hook != nil {
		hook(cp)
	}
	return nil
}

func (f *FakePeripheral) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsAdvertising reports the advertising state.
func (f *FakePeripheral) IsAdvertising() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Advertising
}

// Payloads returns a copy of the notified payloads.
func (f *FakePeripheral) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.Notified...)
}

// AttachedCentral returns the address of the attached central, if any.
func (f *FakePeripheral) AttachedCentral() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Central
}

// Connect simulates a central connecting.
func (f *FakePeripheral) Connect(peer string) {
	f.mu.Lock()
	f.Central = peer
	f.mu.Unlock()
	f.emit(Event{Kind: EventConnected, Peer: peer})
}

// Disconnect simulates the central going away.
func (f *FakePeripheral) Disconnect(peer string) {
	f.mu.Lock()
	f.Central = ""
	f.mu.Unlock()
	f.emit(Event{Kind: EventDisconnected, Peer: peer})
}

// Write simulates the central writing the command characteristic.
func (f *FakePeripheral) Write(p []byte) {
	f.emit(Event{Kind: EventWrite, Data: p})
}

func (f *FakePeripheral) emit(evt Event) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(evt)
	}
}
