//go:build linux

package gpio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

func newTestEdgeReader() *EdgeReader {
	return &EdgeReader{wake: make(chan struct{}, 1)}
}

func TestEdgeReaderTracksLevel(t *testing.T) {
	r := newTestEdgeReader()

	r.handleEvent(gpiocdev.LineEvent{Type: gpiocdev.LineEventFallingEdge})
	if down, _ := r.Read(); !down {
		t.Error("falling edge should read as pressed")
	}
	r.handleEvent(gpiocdev.LineEvent{Type: gpiocdev.LineEventRisingEdge})
	if down, _ := r.Read(); down {
		t.Error("rising edge should read as released")
	}
}

func TestEdgeReaderKeepsPressBeforeWait(t *testing.T) {
	r := newTestEdgeReader()
	r.handleEvent(gpiocdev.LineEvent{Type: gpiocdev.LineEventFallingEdge})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.WaitForPress(ctx); err != nil {
		t.Errorf("press recorded before the wait should wake: %v", err)
	}
}

func TestEdgeReaderClearPending(t *testing.T) {
	r := newTestEdgeReader()
	r.handleEvent(gpiocdev.LineEvent{Type: gpiocdev.LineEventFallingEdge})
	r.ClearPending()
	r.ClearPending()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.WaitForPress(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("cleared press must not wake, got %v", err)
	}
}

func TestEdgeReaderReleaseDoesNotWake(t *testing.T) {
	r := newTestEdgeReader()
	r.handleEvent(gpiocdev.LineEvent{Type: gpiocdev.LineEventRisingEdge})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.WaitForPress(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("release must not wake, got %v", err)
	}
}
