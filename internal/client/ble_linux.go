//go:build linux

package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/sweeney/respiration-monitor/internal/wire"
)

// BLECentral finds and connects to tags with the host's default adapter.
type BLECentral struct {
	adapter *bluetooth.Adapter

	mu       sync.Mutex
	onClosed map[string]func()
}

// NewBLECentral enables the default adapter.
func NewBLECentral() (*BLECentral, error) {
	c := &BLECentral{
		adapter:  bluetooth.DefaultAdapter,
		onClosed: make(map[string]func()),
	}
	if err := c.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}
	c.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := strings.ToUpper(device.Address.String())
		c.mu.Lock()
		fn := c.onClosed[addr]
		delete(c.onClosed, addr)
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
	return c, nil
}

func (c *BLECentral) Scan(ctx context.Context) (string, error) {
	service := bluetooth.NewUUID([16]byte(wire.ServiceUUID))
	found := make(chan string, 1)
	scanErr := make(chan error, 1)

	go func() {
		scanErr <- c.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if r.LocalName() != wire.DeviceName && !r.HasServiceUUID(service) {
				return
			}
			select {
			case found <- r.Address.String():
			default:
			}
			a.StopScan()
		})
	}()

	select {
	case addr := <-found:
		<-scanErr
		return strings.ToUpper(addr), nil
	case err := <-scanErr:
		select {
		case addr := <-found:
			return strings.ToUpper(addr), nil
		default:
		}
		if err == nil {
			err = errors.New("scan stopped")
		}
		return "", err
	case <-ctx.Done():
		c.adapter.StopScan()
		<-scanErr
		return "", ctx.Err()
	}
}

func (c *BLECentral) Connect(ctx context.Context, peer string, h Handlers) (Conn, error) {
	mac, err := bluetooth.ParseMAC(peer)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", peer, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dev, err := c.adapter.Connect(bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}
	fail := func(err error) (Conn, error) {
		if derr := dev.Disconnect(); derr != nil {
			log.Printf("client: disconnect after failed setup: %v", derr)
		}
		return nil, err
	}

	services, err := dev.DiscoverServices([]bluetooth.UUID{bluetooth.NewUUID([16]byte(wire.ServiceUUID))})
	if err != nil || len(services) == 0 {
		return fail(fmt.Errorf("discover service: %w", orMissing(err)))
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{
		bluetooth.NewUUID([16]byte(wire.ReadingCharUUID)),
		bluetooth.NewUUID([16]byte(wire.CommandCharUUID)),
	})
	if err != nil || len(chars) != 2 {
		return fail(fmt.Errorf("discover characteristics: %w", orMissing(err)))
	}
	reading, command := chars[0], chars[1]

	c.mu.Lock()
	c.onClosed[strings.ToUpper(peer)] = h.Disconnected
	c.mu.Unlock()

	err = reading.EnableNotifications(func(buf []byte) {
		h.Notify(append([]byte(nil), buf...))
	})
	if err != nil {
		c.mu.Lock()
		delete(c.onClosed, strings.ToUpper(peer))
		c.mu.Unlock()
		return fail(fmt.Errorf("enable notifications: %w", err))
	}

	return &bleConn{
		write: func(p []byte) error {
			_, err := command.WriteWithoutResponse(p)
			return err
		},
		disconnect: func() error { return dev.Disconnect() },
	}, nil
}

type bleConn struct {
	write      func([]byte) error
	disconnect func() error
}

func (c *bleConn) Write(p []byte) error { return c.write(p) }
func (c *bleConn) Disconnect() error    { return c.disconnect() }

func orMissing(err error) error {
	if err != nil {
		return err
	}
	return errors.New("not found")
}
