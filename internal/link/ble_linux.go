//go:build linux

package link

import (
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/sweeney/respiration-monitor/internal/wire"
)

// BLEPeripheral exposes the tag service on the host's default adapter.
type BLEPeripheral struct {
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement
	reading bluetooth.Characteristic
	name    string

	mu      sync.Mutex
	central *bluetooth.Device
}

// NewBLEPeripheral returns a peripheral advertising under name.
func NewBLEPeripheral(name string) *BLEPeripheral {
	return &BLEPeripheral{adapter: bluetooth.DefaultAdapter, name: name}
}

func (p *BLEPeripheral) Open(handler func(Event)) error {
	if err := p.adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}

	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		kind := EventDisconnected
		p.mu.Lock()
		if connected {
			kind = EventConnected
			d := device
			p.central = &d
		} else {
			p.central = nil
		}
		p.mu.Unlock()
		handler(Event{Kind: kind, Peer: device.Address.String()})
	})

	serviceUUID := bluetooth.NewUUID([16]byte(wire.ServiceUUID))
	err := p.adapter.AddService(&bluetooth.Service{
		UUID: serviceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &p.reading,
				UUID:   bluetooth.NewUUID([16]byte(wire.ReadingCharUUID)),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
			{
				UUID:  bluetooth.NewUUID([16]byte(wire.CommandCharUUID)),
				Flags: bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					handler(Event{Kind: EventWrite, Data: value})
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("add service: %w", err)
	}

	p.adv = p.adapter.DefaultAdvertisement()
	err = p.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    p.name,
		ServiceUUIDs: []bluetooth.UUID{serviceUUID},
	})
	if err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	return nil
}

func (p *BLEPeripheral) Advertise() error {
	if p.adv == nil {
		return ErrClosed
	}
	return p.adv.Start()
}

func (p *BLEPeripheral) StopAdvertising() error {
	if p.adv == nil {
		return nil
	}
	return p.adv.Stop()
}

// DisconnectPeer drops the connected central, if any.
func (p *BLEPeripheral) DisconnectPeer() error {
	p.mu.Lock()
	d := p.central
	p.central = nil
	p.mu.Unlock()
	if d == nil {
		return nil
	}
	return d.Disconnect()
}

func (p *BLEPeripheral) Notify(b []byte) error {
	if p.adv == nil {
		return ErrClosed
	}
	_, err := p.reading.Write(b)
	return err
}

func (p *BLEPeripheral) Close() error {
	err := p.StopAdvertising()
	p.adv = nil
	return err
}
