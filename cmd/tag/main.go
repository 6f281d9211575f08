// Command tag runs the mask-mounted CO2 tag: it samples the sensors, sounds
// the buzzer on alerts and serves readings to a client over BLE.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/respiration-monitor/internal/buzzer"
	"github.com/sweeney/respiration-monitor/internal/device"
	"github.com/sweeney/respiration-monitor/internal/gpio"
	"github.com/sweeney/respiration-monitor/internal/link"
	"github.com/sweeney/respiration-monitor/internal/logic"
	"github.com/sweeney/respiration-monitor/internal/sensor"
	"github.com/sweeney/respiration-monitor/internal/wire"
)

type config struct {
	poll        time.Duration
	debounce    time.Duration
	hold        time.Duration
	advWindow   time.Duration
	chip        string
	pinButton   int
	pinBuzzer   string
	i2cBus      string
	encoding    wire.Format
	sleepOnIdle bool
}

func main() {
	poll := flag.Duration("poll", device.DefaultConfig.PollInterval, "Minimum interval between sensor acquisitions")
	debounce := flag.Duration("debounce", device.DefaultConfig.Debounce, "Button debounce duration")
	hold := flag.Duration("hold", device.DefaultConfig.Hold, "Button hold duration that powers the tag down")
	advWindow := flag.Duration("adv-window", link.DefaultConfig.AdvertiseWindow, "Advertising window after wake before sleeping")
	chip := flag.String("chip", gpio.DefaultChip, "GPIO chip for the button line")
	pinButton := flag.Int("pin-button", gpio.DefaultPinButton, "Line offset of the button")
	pinBuzzer := flag.String("pin-buzzer", buzzer.DefaultPin, "PWM pin name for the buzzer")
	i2cBus := flag.String("i2c", sensor.DefaultBus, "I2C bus name (empty for the first bus)")
	encoding := flag.String("encoding", "json", "Reading encoding: json or binary")
	sleepOnIdle := flag.Bool("sleep-on-idle", device.DefaultConfig.SleepOnIdle, "Power down when the advertising window closes without a client")
	printReading := flag.Bool("print-reading", false, "Print one reading and exit")

	flag.Parse()

	format, err := wire.ParseFormat(*encoding)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	cfg := config{
		poll:        *poll,
		debounce:    *debounce,
		hold:        *hold,
		advWindow:   *advWindow,
		chip:        *chip,
		pinButton:   *pinButton,
		pinBuzzer:   *pinBuzzer,
		i2cBus:      *i2cBus,
		encoding:    format,
		sleepOnIdle: *sleepOnIdle,
	}
	if err := run(cfg, *printReading); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config, printReading bool) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	hw, err := openHardware(cfg)
	if err != nil {
		return idle(sigCh, err)
	}
	defer hw.Close()

	if printReading {
		unit := sensor.NewUnit(hw.climate, hw.gas, sensor.DefaultConfig, time.Now())
		r, err := unit.Read(context.Background(), time.Now())
		if err != nil {
			return fmt.Errorf("read sensors: %w", err)
		}
		r = r.WithAlert(logic.AlertFor(r.CO2PPM, logic.DefaultThresholds), 0)
		fmt.Printf("CO2: %.0f ppm, humidity: %.1f%%, temperature: %.1fC, alert: %s\n",
			r.CO2PPM, r.HumidityPct, r.TemperatureC, r.Alert)
		return nil
	}

	ctrl, err := buildController(cfg, hw, time.Now())
	if err != nil {
		return idle(sigCh, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		s := <-sigCh
		log.Printf("received %v, shutting down", s)
		cancel()
	}()

	log.Printf("started: poll=%v debounce=%v hold=%v adv-window=%v encoding=%s sleep-on-idle=%v",
		cfg.poll, cfg.debounce, cfg.hold, cfg.advWindow, cfg.encoding, cfg.sleepOnIdle)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	return runLoop(ctx, ctrl, ticker.C, time.Now)
}

// idle keeps the process up without entering the loop until a signal
// arrives, then returns the init error.
func idle(sigCh <-chan os.Signal, err error) error {
	log.Printf("init failed, idling until signal: %v", err)
	s := <-sigCh
	log.Printf("received %v, shutting down", s)
	return fmt.Errorf("init: %w", err)
}

// tickInterval is the loop cadence. It must be well below the debounce
// window and the actuator cadence.
const tickInterval = 10 * time.Millisecond

// hardware bundles the device peripherals.
type hardware struct {
	button  gpio.Reader
	waker   gpio.Waker
	climate sensor.Climate
	gas     sensor.Gas
	buzzer  buzzer.Output
	radio   link.Peripheral
	closers []func() error
}

// Close releases every peripheral, newest first.
func (h *hardware) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
}

func openHardware(cfg config) (*hardware, error) {
	hw := &hardware{}
	fail := func(err error) (*hardware, error) {
		hw.Close()
		return nil, err
	}

	btn, err := gpio.NewEdgeReader(cfg.chip, cfg.pinButton)
	if err != nil {
		return fail(fmt.Errorf("init button: %w", err))
	}
	hw.button, hw.waker = btn, btn
	hw.closers = append(hw.closers, btn.Close)

	out, err := buzzer.NewPWMOutput(cfg.pinBuzzer)
	if err != nil {
		return fail(fmt.Errorf("init buzzer: %w", err))
	}
	hw.buzzer = out
	hw.closers = append(hw.closers, out.Close)

	bus, err := sensor.OpenBus(cfg.i2cBus)
	if err != nil {
		return fail(fmt.Errorf("init i2c: %w", err))
	}
	hw.closers = append(hw.closers, bus.Close)

	climate, err := sensor.NewBME280(bus, sensor.DefaultBME280Addr)
	if err != nil {
		return fail(fmt.Errorf("init climate sensor: %w", err))
	}
	hw.climate = climate
	hw.closers = append(hw.closers, climate.Halt)

	gas, err := sensor.NewENS160(bus, sensor.DefaultENS160Addr)
	if err != nil {
		return fail(fmt.Errorf("init gas sensor: %w", err))
	}
	hw.gas = gas

	radio := link.NewBLEPeripheral(wire.DeviceName)
	hw.radio = radio
	hw.closers = append(hw.closers, radio.Close)

	return hw, nil
}

// buildController wires the control loop and opens the radio service. A
// radio that cannot be opened is an init failure.
func buildController(cfg config, hw *hardware, boot time.Time) (*device.Controller, error) {
	dcfg := device.DefaultConfig
	dcfg.PollInterval = cfg.poll
	dcfg.Debounce = cfg.debounce
	dcfg.Hold = cfg.hold
	dcfg.SleepOnIdle = cfg.sleepOnIdle

	scfg := sensor.DefaultConfig
	scfg.MinInterval = cfg.poll

	lcfg := link.DefaultConfig
	lcfg.Format = cfg.encoding
	lcfg.AdvertiseWindow = cfg.advWindow

	lk := link.New(hw.radio, lcfg)
	if err := lk.Open(); err != nil {
		return nil, fmt.Errorf("init radio: %w", err)
	}

	return device.New(dcfg, device.Deps{
		Button:  hw.button,
		Waker:   hw.waker,
		Sensors: sensor.NewUnit(hw.climate, hw.gas, scfg, boot),
		Engine:  logic.NewAlertEngine(logic.DefaultThresholds),
		Buzzer:  buzzer.NewActuator(hw.buzzer, buzzer.DefaultCadence, buzzer.DefaultMaxToggles),
		Link:    lk,
	}), nil
}

// runLoop wakes the tag, as after a power-on, and drives it until ctx is done.
func runLoop(ctx context.Context, ctrl *device.Controller, tick <-chan time.Time, now func() time.Time) error {
	ctrl.Wake()
	return ctrl.Run(ctx, tick, now)
}
