// Package buzzer renders alert levels as audible patterns on a piezo buzzer.
package buzzer

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/respiration-monitor/internal/logic"
)

// Output drives the buzzer hardware.
type Output interface {
	// Tone starts a continuous tone at freqHz. volume is 0-100.
	Tone(freqHz int, volume uint8) error
	// Silence stops any tone.
	Silence() error
	// Close releases the output.
	Close() error
}

// Pattern timing defaults.
const (
	DefaultCadence    = 500 * time.Millisecond
	DefaultMaxToggles = 10
	DefaultVolume     = 100

	ChirpFreq     = 2000
	ChirpDuration = 120 * time.Millisecond
)

// ToneFor returns the tone frequency for an alert level, 0 for none.
func ToneFor(level logic.AlertLevel) int {
	switch level {
	case logic.AlertLow:
		return 800
	case logic.AlertMedium:
		return 1200
	case logic.AlertHigh:
		return 1800
	case logic.AlertCritical:
		return 2500
	}
	return 0
}

// Actuator is the alert pattern state machine. It is Idle when Level() is
// AlertNone and Active otherwise. Not safe for concurrent use; it is owned
// by the control loop.
type Actuator struct {
	out        Output
	cadence    time.Duration
	maxToggles int

	level      logic.AlertLevel
	on         bool
	toggles    int
	lastToggle time.Time

	muted  bool
	volume uint8
}

// NewActuator creates an idle, unmuted actuator at full volume.
func NewActuator(out Output, cadence time.Duration, maxToggles int) *Actuator {
	return &Actuator{
		out:        out,
		cadence:    cadence,
		maxToggles: maxToggles,
		volume:     DefaultVolume,
	}
}

// StartAlert begins the pattern for level. It is a no-op while muted or for
// AlertNone.
func (a *Actuator) StartAlert(level logic.AlertLevel, now time.Time) {
	if a.muted || level == logic.AlertNone {
		return
	}
	a.level = level
	a.toggles = 0
	a.lastToggle = now
	a.setOn(true)
	log.Printf("buzzer: started %s alert (%d Hz)", level, ToneFor(level))
}

// Stop clears the pattern and silences the output.
func (a *Actuator) Stop() {
	wasActive := a.level != logic.AlertNone
	a.level = logic.AlertNone
	a.toggles = 0
	a.setOn(false)
	if wasActive {
		log.Printf("buzzer: stopped")
	}
}

// Update advances the pattern. Call once per loop iteration.
func (a *Actuator) Update(now time.Time) {
	if a.level == logic.AlertNone || a.muted {
		return
	}
	if now.Sub(a.lastToggle) < a.cadence {
		return
	}
	a.lastToggle = now
	a.toggles++
	if a.toggles >= a.maxToggles {
		// Bounded so a stalled loop cannot sound forever
		a.Stop()
		return
	}
	a.setOn(!a.on)
}

// Mute silences output immediately. The logical level is kept.
func (a *Actuator) Mute() {
	a.muted = true
	a.setOn(false)
	log.Printf("buzzer: muted")
}

// Unmute allows output again. It does not restart a cleared alert.
func (a *Actuator) Unmute() {
	a.muted = false
	log.Printf("buzzer: unmuted")
}

// SetVolume sets the tone volume (0-100, clamped).
func (a *Actuator) SetVolume(v uint8) {
	if v > 100 {
		v = 100
	}
	a.volume = v
	if a.on {
		a.setOn(true)
	}
	log.Printf("buzzer: volume %d", v)
}

// Chirp plays a short confirmation tone, blocking for d. Skipped while muted.
func (a *Actuator) Chirp(ctx context.Context, d time.Duration) {
	if a.muted {
		return
	}
	if err := a.out.Tone(ChirpFreq, a.volume); err != nil {
		log.Printf("buzzer: chirp error: %v", err)
		return
	}
	t := time.NewTimer(d)
	select {
	case <-t.C:
	case <-ctx.Done():
		t.Stop()
	}
	if err := a.out.Silence(); err != nil {
		log.Printf("buzzer: silence error: %v", err)
	}
}

// Level returns the logical alert level of the pattern.
func (a *Actuator) Level() logic.AlertLevel { return a.level }

// Active reports whether a pattern is running and audible (not muted).
func (a *Actuator) Active() bool { return a.level != logic.AlertNone && !a.muted }

// Muted reports whether output is muted.
func (a *Actuator) Muted() bool { return a.muted }

// Volume returns the configured volume.
func (a *Actuator) Volume() uint8 { return a.volume }

func (a *Actuator) setOn(on bool) {
	a.on = on
	var err error
	if on && !a.muted && a.volume > 0 {
		err = a.out.Tone(ToneFor(a.level), a.volume)
	} else {
		err = a.out.Silence()
	}
	if err != nil {
		// Output errors are transient; the next toggle retries
		log.Printf("buzzer: output error: %v", err)
	}
}
