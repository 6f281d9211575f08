package sensor

import (
	"errors"
	"time"
)

// ClimateSample is one scripted climate result.
type ClimateSample struct {
	Humidity    float64
	Temperature float64
	Err         error
}

// FakeClimate returns scripted climate samples.
// If samples are exhausted, returns the last sample repeatedly.
type FakeClimate struct {
	Samples []ClimateSample
	// Delay, if set, blocks each Sense call.
	Delay time.Duration
	Calls int
	index int
}

// NewFakeClimate creates a FakeClimate with the given samples.
func NewFakeClimate(samples ...ClimateSample) *FakeClimate {
	return &FakeClimate{Samples: samples}
}

// Sense returns the next scripted sample.
func (f *FakeClimate) Sense() (float64, float64, error) {
	f.Calls++
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	if len(f.Samples) == 0 {
		return 0, 0, errors.New("no samples configured")
	}
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s.Humidity, s.Temperature, s.Err
}

// GasSample is one scripted CO2 result.
type GasSample struct {
	PPM float64
	Err error
}

// FakeGas returns scripted CO2 samples and records compensation writes.
type FakeGas struct {
	Samples []GasSample
	Delay   time.Duration
	Calls   int
	// Compensations records (humidity, temperature) pairs.
	Compensations [][2]float64
	index         int
}

// NewFakeGas creates a FakeGas with the given samples.
func NewFakeGas(samples ...GasSample) *FakeGas {
	return &FakeGas{Samples: samples}
}

// CO2 returns the next scripted sample.
func (f *FakeGas) CO2() (float64, error) {
	f.Calls++
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s.PPM, s.Err
}

// Compensate records the values.
func (f *FakeGas) Compensate(humidityPct, temperatureC float64) error {
	f.Compensations = append(f.Compensations, [2]float64{humidityPct, temperatureC})
	return nil
}

// SetPPM replaces the script with a single constant value.
func (f *FakeGas) SetPPM(ppm float64) {
	f.Samples = []GasSample{{PPM: ppm}}
	f.index = 0
}
