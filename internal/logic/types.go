// Package logic contains the pure data model and decision logic of the tag.
// This package has NO external dependencies (no GPIO, BLE, sensors or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"math"
	"time"
)

// AlertLevel is a discrete escalation tier derived from CO2 concentration.
// Levels are totally ordered: None < Low < Medium < High < Critical.
type AlertLevel uint8

const (
	AlertNone AlertLevel = iota
	AlertLow
	AlertMedium
	AlertHigh
	AlertCritical
)

// MaxAlertLevel is the highest valid alert code on the wire.
const MaxAlertLevel = AlertCritical

func (l AlertLevel) String() string {
	switch l {
	case AlertNone:
		return "NONE"
	case AlertLow:
		return "LOW"
	case AlertMedium:
		return "MEDIUM"
	case AlertHigh:
		return "HIGH"
	case AlertCritical:
		return "CRITICAL"
	}
	return "INVALID"
}

// Valid reports whether l is one of the five defined levels.
func (l AlertLevel) Valid() bool {
	return l <= MaxAlertLevel
}

// Thresholds are the ascending CO2 boundaries (ppm) of each level.
// A value exactly on a boundary belongs to the higher level.
type Thresholds struct {
	Low      float64
	Medium   float64
	High     float64
	Critical float64
}

// DefaultThresholds match the tag's factory configuration.
var DefaultThresholds = Thresholds{
	Low:      1000,
	Medium:   5000,
	High:     10000,
	Critical: 40000,
}

// AlertFor maps a CO2 concentration to its alert level.
// It is total: NaN and negative values map to AlertNone.
func AlertFor(co2ppm float64, th Thresholds) AlertLevel {
	switch {
	case math.IsNaN(co2ppm):
		return AlertNone
	case co2ppm >= th.Critical:
		return AlertCritical
	case co2ppm >= th.High:
		return AlertHigh
	case co2ppm >= th.Medium:
		return AlertMedium
	case co2ppm >= th.Low:
		return AlertLow
	}
	return AlertNone
}

// StatusFlags are the device status bits carried alongside a Reading.
type StatusFlags uint8

const (
	StatusMuted    StatusFlags = 1 << iota // actuator is muted
	StatusSounding                         // actuator pattern is audible
	StatusStale                            // last acquisition failed, cached sample re-sent
)

// Has reports whether all bits in f are set.
func (s StatusFlags) Has(f StatusFlags) bool {
	return s&f == f
}

// Reading is one sampled set of CO2/humidity/temperature values plus the
// derived alert level. Readings are values and never mutated after creation.
type Reading struct {
	CO2PPM       float64
	HumidityPct  float64
	TemperatureC float64
	Alert        AlertLevel
	Status       StatusFlags
	// Sequence increases by one per successful acquisition.
	Sequence uint32
	// Uptime is the device uptime when the sample was taken.
	Uptime time.Duration
}

// WithAlert returns a copy of r carrying the given level and status.
func (r Reading) WithAlert(level AlertLevel, status StatusFlags) Reading {
	r.Alert = level
	r.Status = status
	return r
}
