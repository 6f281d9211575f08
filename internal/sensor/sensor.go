// Package sensor is the acquisition unit: it polls the climate and CO2
// sensors with bounded transactions and caches the last valid reading.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sweeney/respiration-monitor/internal/logic"
)

var (
	// ErrTimeout is returned when a sensor transaction exceeds its deadline.
	ErrTimeout = errors.New("sensor: transaction timed out")
	// ErrBusy is returned while an earlier timed-out transaction is still running.
	ErrBusy = errors.New("sensor: previous transaction still running")
	// ErrNotReady is returned when a sensor has no new data yet.
	ErrNotReady = errors.New("sensor: data not ready")
)

// Climate measures relative humidity and temperature.
type Climate interface {
	Sense() (humidityPct, temperatureC float64, err error)
}

// Gas measures the CO2 (or CO2-equivalent) concentration in ppm.
type Gas interface {
	CO2() (float64, error)
}

// Compensator is implemented by gas sensors that correct their output for
// ambient humidity and temperature.
type Compensator interface {
	Compensate(humidityPct, temperatureC float64) error
}

// Config holds acquisition timing.
type Config struct {
	// MinInterval is the minimum time between two physical acquisitions.
	MinInterval time.Duration
	// Timeout bounds every single sensor transaction.
	Timeout time.Duration
}

// DefaultConfig matches the tag's factory timing.
var DefaultConfig = Config{
	MinInterval: time.Second,
	Timeout:     250 * time.Millisecond,
}

// Unit produces Readings from a climate and a gas sensor.
type Unit struct {
	climate Climate
	gas     Gas
	cfg     Config
	boot    time.Time

	seq    uint32
	last   logic.Reading
	lastAt time.Time
	valid  bool

	climateBusy atomic.Bool
	gasBusy     atomic.Bool
}

// NewUnit creates an acquisition unit. boot is the reference for Reading uptime.
func NewUnit(climate Climate, gas Gas, cfg Config, boot time.Time) *Unit {
	return &Unit{climate: climate, gas: gas, cfg: cfg, boot: boot}
}

// Read acquires a new Reading. Inside MinInterval of the last valid
// acquisition the cached Reading is returned instead. The returned Reading
// has no alert level or status; the caller derives those.
func (u *Unit) Read(ctx context.Context, now time.Time) (logic.Reading, error) {
	if u.valid && now.Sub(u.lastAt) < u.cfg.MinInterval {
		return u.last, nil
	}

	type climateSample struct{ h, t float64 }
	cs, err := transact(ctx, u.cfg.Timeout, &u.climateBusy, func() (climateSample, error) {
		h, t, err := u.climate.Sense()
		return climateSample{h, t}, err
	})
	if err != nil {
		return logic.Reading{}, fmt.Errorf("read climate: %w", err)
	}

	if c, ok := u.gas.(Compensator); ok {
		if _, err := transact(ctx, u.cfg.Timeout, &u.gasBusy, func() (struct{}, error) {
			return struct{}{}, c.Compensate(cs.h, cs.t)
		}); err != nil {
			return logic.Reading{}, fmt.Errorf("compensate co2: %w", err)
		}
	}

	co2, err := transact(ctx, u.cfg.Timeout, &u.gasBusy, u.gas.CO2)
	if err != nil {
		return logic.Reading{}, fmt.Errorf("read co2: %w", err)
	}

	u.seq++
	r := logic.Reading{
		CO2PPM:       co2,
		HumidityPct:  cs.h,
		TemperatureC: cs.t,
		Sequence:     u.seq,
		Uptime:       now.Sub(u.boot),
	}
	u.last = r
	u.lastAt = now
	u.valid = true
	return r, nil
}

// Last returns the cached Reading and whether one exists.
func (u *Unit) Last() (logic.Reading, bool) {
	return u.last, u.valid
}

// Reset drops the cache so the next Read acquires immediately.
func (u *Unit) Reset() {
	u.valid = false
	u.lastAt = time.Time{}
}

// transact runs fn with a deadline. A transaction that overruns keeps its
// busy flag raised until it returns, and further calls fail fast with ErrBusy.
func transact[T any](ctx context.Context, timeout time.Duration, busy *atomic.Bool, fn func() (T, error)) (T, error) {
	var zero T
	if !busy.CompareAndSwap(false, true) {
		return zero, ErrBusy
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		busy.Store(false)
		done <- result{v, err}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case res := <-done:
		return res.v, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}
