package sensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// Default bus wiring.
const (
	DefaultBus         = "" // first registered I2C bus
	DefaultBME280Addr  = 0x76
	DefaultENS160Addr  = 0x53
	ens160PartID       = 0x0160
	ens160RegPartID    = 0x00
	ens160RegOpMode    = 0x10
	ens160RegTempIn    = 0x13
	ens160RegRHIn      = 0x15
	ens160RegStatus    = 0x20
	ens160RegECO2      = 0x24
	ens160OpModeStd    = 0x02
	ens160StatusNewDat = 0x02
)

// OpenBus initializes the periph host and opens an I2C bus by name.
func OpenBus(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return bus, nil
}

// BME280 is a humidity/temperature sensor.
type BME280 struct {
	dev *bmxx80.Dev
}

// NewBME280 initializes a BME280 on the bus.
func NewBME280(bus i2c.Bus, addr uint16) (*BME280, error) {
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("bme280 init: %w", err)
	}
	return &BME280{dev: dev}, nil
}

// Sense reads humidity (%RH) and temperature (°C).
func (b *BME280) Sense() (float64, float64, error) {
	var e physic.Env
	if err := b.dev.Sense(&e); err != nil {
		return 0, 0, fmt.Errorf("bme280 sense: %w", err)
	}
	return float64(e.Humidity) / float64(physic.PercentRH), e.Temperature.Celsius(), nil
}

// Halt stops the sensor.
func (b *BME280) Halt() error {
	return b.dev.Halt()
}

// ENS160 is a metal-oxide gas sensor reporting equivalent CO2.
type ENS160 struct {
	dev *i2c.Dev
}

// NewENS160 checks the part ID and switches the sensor to standard mode.
func NewENS160(bus i2c.Bus, addr uint16) (*ENS160, error) {
	s := &ENS160{dev: &i2c.Dev{Bus: bus, Addr: addr}}

	id := make([]byte, 2)
	if err := s.dev.Tx([]byte{ens160RegPartID}, id); err != nil {
		return nil, fmt.Errorf("ens160 read part id: %w", err)
	}
	if got := binary.LittleEndian.Uint16(id); got != ens160PartID {
		return nil, fmt.Errorf("ens160 unexpected part id %#04x", got)
	}
	if err := s.dev.Tx([]byte{ens160RegOpMode, ens160OpModeStd}, nil); err != nil {
		return nil, fmt.Errorf("ens160 set standard mode: %w", err)
	}
	return s, nil
}

// Compensate writes ambient temperature and humidity used by the sensor's
// internal correction.
func (s *ENS160) Compensate(humidityPct, temperatureC float64) error {
	buf := make([]byte, 5)
	buf[0] = ens160RegTempIn
	binary.LittleEndian.PutUint16(buf[1:3], uint16(math.Round((temperatureC+273.15)*64)))
	binary.LittleEndian.PutUint16(buf[3:5], uint16(math.Round(humidityPct*512)))
	if err := s.dev.Tx(buf, nil); err != nil {
		return fmt.Errorf("ens160 compensation: %w", err)
	}
	return nil
}

// CO2 returns the equivalent CO2 concentration in ppm.
func (s *ENS160) CO2() (float64, error) {
	status := make([]byte, 1)
	if err := s.dev.Tx([]byte{ens160RegStatus}, status); err != nil {
		return 0, fmt.Errorf("ens160 status: %w", err)
	}
	if status[0]&ens160StatusNewDat == 0 {
		return 0, ErrNotReady
	}
	eco2 := make([]byte, 2)
	if err := s.dev.Tx([]byte{ens160RegECO2}, eco2); err != nil {
		return 0, fmt.Errorf("ens160 eco2: %w", err)
	}
	return float64(binary.LittleEndian.Uint16(eco2)), nil
}
