//go:build linux

package gpio

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
)

// PolledReader reads the button by sampling the line value on every call.
type PolledReader struct {
	line *gpiocdev.Line
}

// NewPolledReader requests the button line as an input with pull-up.
func NewPolledReader(chip string, offset int) (*PolledReader, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request button pin %d: %w", offset, err)
	}
	return &PolledReader{line: line}, nil
}

// Read returns true while the button is pressed.
func (r *PolledReader) Read() (bool, error) {
	raw, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read button pin: %w", err)
	}
	// Invert: raw inactive (0) = pressed
	return raw == 0, nil
}

// Close releases the line.
func (r *PolledReader) Close() error {
	return closeLine(r.line)
}

// EdgeReader tracks the button through kernel edge events. The event
// handler only stores the level and raises the wake signal; it never
// touches sensors or the radio.
type EdgeReader struct {
	line    *gpiocdev.Line
	pressed atomic.Bool
	wake    chan struct{}
}

// NewEdgeReader requests the button line with edge detection on both edges.
func NewEdgeReader(chip string, offset int) (*EdgeReader, error) {
	r := &EdgeReader{wake: make(chan struct{}, 1)}
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(r.handleEvent))
	if err != nil {
		return nil, fmt.Errorf("request button pin %d: %w", offset, err)
	}
	r.line = line

	// Seed the level; events only report changes
	raw, err := line.Value()
	if err != nil {
		line.Close()
		return nil, fmt.Errorf("read button pin: %w", err)
	}
	r.pressed.Store(raw == 0)
	return r, nil
}

func (r *EdgeReader) handleEvent(evt gpiocdev.LineEvent) {
	pressed := evt.Type == gpiocdev.LineEventFallingEdge
	r.pressed.Store(pressed)
	if pressed {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
}

// Read returns the level recorded by the last edge event.
func (r *EdgeReader) Read() (bool, error) {
	return r.pressed.Load(), nil
}

// WaitForPress blocks until a press edge, returning at once if one arrived
// since the last ClearPending.
func (r *EdgeReader) WaitForPress(ctx context.Context) error {
	select {
	case <-r.wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClearPending drops a press edge recorded before the call.
func (r *EdgeReader) ClearPending() {
	select {
	case <-r.wake:
	default:
	}
}

// Close releases the line.
func (r *EdgeReader) Close() error {
	return closeLine(r.line)
}

// closeLine reconfigures the line to input with pull-up (the idle state of
// the button wiring) before closing.
func closeLine(line *gpiocdev.Line) error {
	if line == nil {
		return nil
	}
	var errs []error
	if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure button pin: %w", err))
	}
	if err := line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close button pin: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
