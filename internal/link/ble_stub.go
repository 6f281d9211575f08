//go:build !linux

package link

import "errors"

// BLEPeripheral is only available on Linux.
type BLEPeripheral struct{}

// NewBLEPeripheral returns a peripheral that always fails to open.
func NewBLEPeripheral(name string) *BLEPeripheral { return &BLEPeripheral{} }

func (p *BLEPeripheral) Open(func(Event)) error {
	return errors.New("bluetooth peripheral not supported on this platform")
}
func (p *BLEPeripheral) Advertise() error       { return ErrClosed }
func (p *BLEPeripheral) StopAdvertising() error { return nil }
func (p *BLEPeripheral) DisconnectPeer() error  { return nil }
func (p *BLEPeripheral) Notify([]byte) error    { return ErrClosed }
func (p *BLEPeripheral) Close() error           { return nil }
