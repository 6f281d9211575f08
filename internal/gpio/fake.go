package gpio

import (
	"context"
	"errors"
)

// FakeReader is a test double that returns scripted button values.
type FakeReader struct {
	// Samples contains scripted pressed values to return.
	// Each call to Read() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error

	// Wakes counts calls to WaitForPress
	Wakes int

	// WakeError, if set, will be returned by WaitForPress
	WakeError error

	// Clears counts calls to ClearPending
	Clears int
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Set replaces the script with a single constant value.
func (f *FakeReader) Set(pressed bool) {
	f.Samples = []bool{pressed}
	f.index = 0
}

// WaitForPress returns immediately, as if the button was pressed.
func (f *FakeReader) WaitForPress(ctx context.Context) error {
	f.Wakes++
	if f.WakeError != nil {
		return f.WakeError
	}
	return ctx.Err()
}

// ClearPending records the call.
func (f *FakeReader) ClearPending() {
	f.Clears++
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}
