//go:build !linux

package gpio

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// PolledReader is not available on non-Linux platforms.
type PolledReader struct{}

// NewPolledReader returns an error on non-Linux platforms.
func NewPolledReader(chip string, offset int) (*PolledReader, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (r *PolledReader) Read() (bool, error) { return false, errUnsupported }

// Close is not implemented on non-Linux platforms.
func (r *PolledReader) Close() error { return nil }

// EdgeReader is not available on non-Linux platforms.
type EdgeReader struct{}

// NewEdgeReader returns an error on non-Linux platforms.
func NewEdgeReader(chip string, offset int) (*EdgeReader, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (r *EdgeReader) Read() (bool, error) { return false, errUnsupported }

// WaitForPress is not implemented on non-Linux platforms.
func (r *EdgeReader) WaitForPress(ctx context.Context) error { return errUnsupported }

// ClearPending does nothing.
func (r *EdgeReader) ClearPending() {}

// Close is not implemented on non-Linux platforms.
func (r *EdgeReader) Close() error { return nil }
