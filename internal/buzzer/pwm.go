package buzzer

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// DefaultPin is the PWM-capable pin wired to the buzzer.
const DefaultPin = "GPIO18"

// PWMOutput drives a passive buzzer with a hardware PWM pin.
type PWMOutput struct {
	pin gpio.PinIO
}

// NewPWMOutput initializes the periph host and looks up the named pin.
func NewPWMOutput(name string) (*PWMOutput, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("buzzer pin %q not found", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("buzzer pin %s out: %w", name, err)
	}
	return &PWMOutput{pin: pin}, nil
}

// Tone starts a square wave at freqHz. Loudness scales the duty cycle up to
// 50%, the loudest setting for a piezo.
func (p *PWMOutput) Tone(freqHz int, volume uint8) error {
	if freqHz <= 0 || volume == 0 {
		return p.Silence()
	}
	duty := gpio.DutyHalf * gpio.Duty(volume) / 100
	if err := p.pin.PWM(duty, physic.Frequency(freqHz)*physic.Hertz); err != nil {
		return fmt.Errorf("buzzer pwm %d Hz: %w", freqHz, err)
	}
	return nil
}

// Silence drives the pin low.
func (p *PWMOutput) Silence() error {
	if err := p.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("buzzer silence: %w", err)
	}
	return nil
}

// Close silences and halts the pin.
func (p *PWMOutput) Close() error {
	if err := p.Silence(); err != nil {
		return err
	}
	return p.pin.Halt()
}
