package device

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/respiration-monitor/internal/buzzer"
	"github.com/sweeney/respiration-monitor/internal/gpio"
	"github.com/sweeney/respiration-monitor/internal/link"
	"github.com/sweeney/respiration-monitor/internal/logic"
	"github.com/sweeney/respiration-monitor/internal/sensor"
)

// Config holds control loop timing.
type Config struct {
	// PollInterval is the minimum time between acquisitions.
	PollInterval time.Duration
	// RetryBackoff delays the next attempt after a failed acquisition.
	RetryBackoff time.Duration
	// Debounce and Hold configure the button.
	Debounce time.Duration
	Hold     time.Duration
	// ReleasePoll is the button sampling interval while waiting for release
	// before power-down.
	ReleasePoll time.Duration
	// SleepOnIdle powers down once the advertising window closes with no
	// peer. When false the window is restarted instead.
	SleepOnIdle bool
}

// DefaultConfig matches the tag's factory settings.
var DefaultConfig = Config{
	PollInterval: time.Second,
	RetryBackoff: 500 * time.Millisecond,
	Debounce:     50 * time.Millisecond,
	Hold:         2 * time.Second,
	ReleasePoll:  20 * time.Millisecond,
	SleepOnIdle:  true,
}

// Deps are the subsystems the loop drives.
type Deps struct {
	Button  gpio.Reader
	Waker   gpio.Waker
	Sensors *sensor.Unit
	Engine  *logic.AlertEngine
	Buzzer  *buzzer.Actuator
	Link    *link.Link
}

// Controller is the device state machine. It is not safe for concurrent
// use except for Wake, which may be called from any goroutine.
type Controller struct {
	cfg  Config
	deps Deps

	button *logic.Button
	wake   logic.Latch

	state       State
	nextAttempt time.Time

	reading     logic.Reading
	haveReading bool
	stale       bool

	// OnReading, if set, is called with every Reading handed to the link.
	OnReading func(logic.Reading)
	// OnState, if set, is called on every state change.
	OnState func(from, to State)
}

// New creates a controller in StateSleeping.
func New(cfg Config, deps Deps) *Controller {
	return &Controller{
		cfg:    cfg,
		deps:   deps,
		button: logic.NewButton(cfg.Debounce, cfg.Hold),
		state:  StateSleeping,
	}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Reading returns the last Reading and whether one exists.
func (c *Controller) Reading() (logic.Reading, bool) { return c.reading, c.haveReading }

// Wake raises the wake flag. The next Step out of StateSleeping consumes it.
func (c *Controller) Wake() { c.wake.Set() }

// Step runs one loop iteration at now.
func (c *Controller) Step(ctx context.Context, now time.Time) {
	if c.state == StateSleeping {
		if c.wake.Take() {
			c.enter(StateWakingUp)
		}
		return
	}

	c.sampleButton(now)
	c.deps.Buzzer.Update(now)
	c.deps.Link.Poll()

	if c.state != StatePreparingSleep {
		if c.button.Pressed() && c.deps.Buzzer.Active() {
			log.Printf("device: button press, silencing alert")
			c.deps.Buzzer.Stop()
		}
		if c.button.Held() {
			log.Printf("device: button held, going to sleep")
			c.enter(StatePreparingSleep)
		}
	}
	if c.state != StatePreparingSleep {
		if cmd, ok := c.deps.Link.TakeCommand(); ok {
			c.execute(cmd)
		}
	}

	switch c.state {
	case StateWakingUp:
		c.wakeUp(now)
	case StateReadingSensors:
		c.readSensors(ctx, now)
	case StateProcessingAlerts:
		c.processAlerts(now)
	case StateCommunicating:
		c.communicate(now)
	case StatePreparingSleep:
		c.prepareSleep(ctx)
	}
}

// Run steps the loop on every tick until ctx is done. While sleeping it
// blocks on the waker instead of ticking.
func (c *Controller) Run(ctx context.Context, tick <-chan time.Time, now func() time.Time) error {
	for {
		if c.state == StateSleeping && !c.wake.Peek() {
			if err := c.powerDown(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			c.Step(ctx, now())
		}
	}
}

func (c *Controller) powerDown(ctx context.Context) error {
	log.Printf("device: powered down, waiting for button")
	if err := c.deps.Waker.WaitForPress(ctx); err != nil {
		return fmt.Errorf("wait for wake: %w", err)
	}
	c.wake.Set()
	return nil
}

func (c *Controller) enter(s State) {
	if s == c.state {
		return
	}
	log.Printf("device: %s -> %s", c.state, s)
	from := c.state
	c.state = s
	if c.OnState != nil {
		c.OnState(from, s)
	}
}

func (c *Controller) sampleButton(now time.Time) {
	raw, err := c.deps.Button.Read()
	if err != nil {
		log.Printf("device: button read error: %v", err)
		return
	}
	c.button.Sample(raw, now)
}

func (c *Controller) execute(cmd logic.Command) {
	log.Printf("device: command %s", cmd)
	switch cmd.Kind {
	case logic.CmdMute:
		if cmd.Mute {
			c.deps.Buzzer.Mute()
		} else {
			c.deps.Buzzer.Unmute()
		}
	case logic.CmdSetVolume:
		c.deps.Buzzer.SetVolume(cmd.Volume)
	case logic.CmdPowerOff, logic.CmdForceSleep:
		c.enter(StatePreparingSleep)
	case logic.CmdRequestData:
		if !c.haveReading {
			log.Printf("device: no reading to resend")
			return
		}
		c.send(c.reading.WithAlert(c.reading.Alert, c.status()))
	case logic.CmdResetAlerts:
		c.deps.Buzzer.Stop()
		c.deps.Buzzer.Unmute()
		c.deps.Engine.Reset()
		c.reading.Alert = logic.AlertNone
	}
}

func (c *Controller) wakeUp(now time.Time) {
	raw, err := c.deps.Button.Read()
	if err != nil {
		log.Printf("device: button read error: %v", err)
	}
	// The press that woke us must not count as a short press or hold
	c.button.Reset(raw)
	c.deps.Sensors.Reset()
	c.nextAttempt = time.Time{}
	if err := c.deps.Link.Start(now); err != nil {
		log.Printf("device: link start failed: %v", err)
	}
	c.enter(StateReadingSensors)
}

func (c *Controller) readSensors(ctx context.Context, now time.Time) {
	if now.Before(c.nextAttempt) {
		return
	}

	r, err := c.deps.Sensors.Read(ctx, now)
	if err != nil {
		log.Printf("device: sensor read failed, retrying in %v: %v", c.cfg.RetryBackoff, err)
		c.nextAttempt = now.Add(c.cfg.RetryBackoff)
		c.stale = true
		return
	}

	c.nextAttempt = now.Add(c.cfg.PollInterval)
	c.stale = false
	c.reading = r
	c.haveReading = true
	c.enter(StateProcessingAlerts)
}

func (c *Controller) processAlerts(now time.Time) {
	if tr, changed := c.deps.Engine.Process(c.reading.CO2PPM); changed {
		log.Printf("device: alert %s -> %s at %.0f ppm", tr.From, tr.To, c.reading.CO2PPM)
		if tr.To == logic.AlertNone {
			c.deps.Buzzer.Stop()
		} else {
			c.deps.Buzzer.StartAlert(tr.To, now)
		}
	}
	c.reading = c.reading.WithAlert(c.deps.Engine.Current(), c.status())
	c.enter(StateCommunicating)
}

func (c *Controller) communicate(now time.Time) {
	connected := c.deps.Link.Connected()
	expired := c.deps.Link.AdvertisingExpired(now)

	if connected || !expired {
		c.send(c.reading)
	}

	if !connected && expired {
		if c.cfg.SleepOnIdle {
			log.Printf("device: no peer within advertising window")
			c.enter(StatePreparingSleep)
			return
		}
		if err := c.deps.Link.Start(now); err != nil {
			log.Printf("device: link restart failed: %v", err)
		}
	}
	c.enter(StateReadingSensors)
}

func (c *Controller) send(r logic.Reading) {
	if err := c.deps.Link.Send(r); err != nil {
		log.Printf("device: send failed: %v", err)
	}
	if c.OnReading != nil {
		c.OnReading(r)
	}
}

func (c *Controller) prepareSleep(ctx context.Context) {
	c.deps.Buzzer.Chirp(ctx, buzzer.ChirpDuration)
	c.deps.Buzzer.Stop()
	if err := c.deps.Link.Stop(); err != nil {
		log.Printf("device: link stop failed: %v", err)
	}
	// Edges from before the release cannot wake us; a press after it can
	c.deps.Waker.ClearPending()
	c.waitRelease(ctx)
	c.enter(StateSleeping)
}

// waitRelease blocks until the button reads released or ctx is done.
func (c *Controller) waitRelease(ctx context.Context) {
	for {
		down, err := c.deps.Button.Read()
		if err != nil {
			log.Printf("device: button read error: %v", err)
			return
		}
		if !down {
			return
		}
		t := time.NewTimer(c.cfg.ReleasePoll)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (c *Controller) status() logic.StatusFlags {
	var s logic.StatusFlags
	if c.deps.Buzzer.Muted() {
		s |= logic.StatusMuted
	}
	if c.deps.Buzzer.Active() {
		s |= logic.StatusSounding
	}
	if c.stale {
		s |= logic.StatusStale
	}
	return s
}
