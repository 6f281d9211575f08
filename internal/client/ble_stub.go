//go:build !linux

package client

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("bluetooth central not supported on this platform")

// BLECentral is only available on Linux.
type BLECentral struct{}

// NewBLECentral always fails off Linux.
func NewBLECentral() (*BLECentral, error) { return nil, errUnsupported }

func (c *BLECentral) Scan(context.Context) (string, error) { return "", errUnsupported }

func (c *BLECentral) Connect(context.Context, string, Handlers) (Conn, error) {
	return nil, errUnsupported
}
