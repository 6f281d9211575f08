// Package gpio provides push-button input with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "context"

// Reader reads the button line.
type Reader interface {
	// Read returns the logical state of the button, true = pressed.
	// The line is pulled up and the button shorts it to ground,
	// so raw inactive (0) = pressed.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Waker blocks until the button signals a wake-up.
type Waker interface {
	// WaitForPress returns when a press edge arrives or ctx is done. A
	// press recorded before the call counts.
	WaitForPress(ctx context.Context) error

	// ClearPending forgets press edges recorded so far.
	ClearPending()
}

// Default wiring (gpiochip0 line offsets).
const (
	DefaultChip      = "gpiochip0"
	DefaultPinButton = 14
)
