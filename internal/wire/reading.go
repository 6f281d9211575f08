package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sweeney/respiration-monitor/internal/logic"
)

// ErrMalformed is returned for payloads that fail shape, length or range checks.
var ErrMalformed = errors.New("wire: malformed payload")

// Format selects a Reading encoding.
type Format int

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatBinary
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatBinary:
		return "binary"
	}
	return "unknown"
}

// ParseFormat parses "json" or "binary".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json":
		return FormatJSON, nil
	case "binary":
		return FormatBinary, nil
	}
	return FormatUnknown, fmt.Errorf("unknown encoding %q (want json or binary)", s)
}

// BinarySize is the length of the compact Reading packet.
//
// Layout (little-endian):
//
//	[0:2]   uint16 co2 ppm
//	[2:4]   int16  humidity * 10
//	[4:6]   int16  temperature * 10
//	[6]     uint8  alert level
//	[7]     uint8  status flags
//	[8:12]  uint32 uptime seconds
//	[12:16] uint32 sequence
const BinarySize = 16

// Payload is the JSON Reading object.
type Payload struct {
	CO2         float64 `json:"co2"`
	Humidity    float64 `json:"humidity"`
	Temperature float64 `json:"temperature"`
	Alert       int     `json:"alert"`
	Timestamp   uint64  `json:"timestamp"` // device uptime, ms
}

// inboundPayload detects missing keys.
type inboundPayload struct {
	CO2         *float64 `json:"co2"`
	Humidity    *float64 `json:"humidity"`
	Temperature *float64 `json:"temperature"`
	Alert       *int     `json:"alert"`
	Timestamp   *uint64  `json:"timestamp"`
}

// Encode serializes r in the given format.
func Encode(r logic.Reading, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return EncodeJSON(r)
	case FormatBinary:
		return EncodeBinary(r), nil
	}
	return nil, fmt.Errorf("encode reading: unknown format %d", f)
}

// EncodeJSON returns the JSON object form of r.
func EncodeJSON(r logic.Reading) ([]byte, error) {
	return json.Marshal(Payload{
		CO2:         r.CO2PPM,
		Humidity:    r.HumidityPct,
		Temperature: r.TemperatureC,
		Alert:       int(r.Alert),
		Timestamp:   uint64(r.Uptime / time.Millisecond),
	})
}

// EncodeBinary returns the 16-byte packet form of r. Values outside the
// fixed-point range are clamped.
func EncodeBinary(r logic.Reading) []byte {
	buf := make([]byte, BinarySize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(clamp(math.Round(r.CO2PPM), 0, math.MaxUint16)))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(int16(clamp(math.Round(r.HumidityPct*10), math.MinInt16, math.MaxInt16))))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(int16(clamp(math.Round(r.TemperatureC*10), math.MinInt16, math.MaxInt16))))
	buf[6] = byte(r.Alert)
	buf[7] = byte(r.Status)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.Uptime/time.Second))
	binary.LittleEndian.PutUint32(buf[12:16], r.Sequence)
	return buf
}

// Sniff classifies a payload by shape: syntactically valid JSON is JSON,
// otherwise exactly BinarySize bytes is binary. A JSON object carrying all
// required keys cannot fit in BinarySize bytes.
func Sniff(p []byte) Format {
	if json.Valid(p) {
		return FormatJSON
	}
	if len(p) == BinarySize {
		return FormatBinary
	}
	return FormatUnknown
}

// Decode parses either encoding into a Reading. Any shape, length or range
// violation yields an error wrapping ErrMalformed and a zero Reading.
func Decode(p []byte) (logic.Reading, error) {
	switch Sniff(p) {
	case FormatJSON:
		return decodeJSON(p)
	case FormatBinary:
		return decodeBinary(p)
	}
	return logic.Reading{}, fmt.Errorf("%w: %d bytes is neither json nor a %d-byte packet", ErrMalformed, len(p), BinarySize)
}

func decodeJSON(p []byte) (logic.Reading, error) {
	var in inboundPayload
	if err := json.Unmarshal(p, &in); err != nil {
		return logic.Reading{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if in.CO2 == nil || in.Humidity == nil || in.Temperature == nil || in.Alert == nil || in.Timestamp == nil {
		return logic.Reading{}, fmt.Errorf("%w: missing field", ErrMalformed)
	}
	if *in.Alert < 0 || *in.Alert > int(logic.MaxAlertLevel) {
		return logic.Reading{}, fmt.Errorf("%w: alert %d out of range", ErrMalformed, *in.Alert)
	}

	r := logic.Reading{
		CO2PPM:       *in.CO2,
		HumidityPct:  *in.Humidity,
		TemperatureC: *in.Temperature,
		Alert:        logic.AlertLevel(*in.Alert),
		Uptime:       time.Duration(*in.Timestamp) * time.Millisecond,
	}
	if err := validate(r); err != nil {
		return logic.Reading{}, err
	}
	return r, nil
}

func decodeBinary(p []byte) (logic.Reading, error) {
	if len(p) != BinarySize {
		return logic.Reading{}, fmt.Errorf("%w: packet length %d, want %d", ErrMalformed, len(p), BinarySize)
	}
	alert := logic.AlertLevel(p[6])
	if !alert.Valid() {
		return logic.Reading{}, fmt.Errorf("%w: alert %d out of range", ErrMalformed, p[6])
	}

	r := logic.Reading{
		CO2PPM:       float64(binary.LittleEndian.Uint16(p[0:2])),
		HumidityPct:  float64(int16(binary.LittleEndian.Uint16(p[2:4]))) / 10,
		TemperatureC: float64(int16(binary.LittleEndian.Uint16(p[4:6]))) / 10,
		Alert:        alert,
		Status:       logic.StatusFlags(p[7]),
		Uptime:       time.Duration(binary.LittleEndian.Uint32(p[8:12])) * time.Second,
		Sequence:     binary.LittleEndian.Uint32(p[12:16]),
	}
	if err := validate(r); err != nil {
		return logic.Reading{}, err
	}
	return r, nil
}

func validate(r logic.Reading) error {
	switch {
	case math.IsNaN(r.CO2PPM) || math.IsInf(r.CO2PPM, 0) || r.CO2PPM < 0:
		return fmt.Errorf("%w: co2 %v out of range", ErrMalformed, r.CO2PPM)
	case math.IsNaN(r.HumidityPct) || r.HumidityPct < 0 || r.HumidityPct > 100:
		return fmt.Errorf("%w: humidity %v out of range", ErrMalformed, r.HumidityPct)
	case math.IsNaN(r.TemperatureC) || math.IsInf(r.TemperatureC, 0):
		return fmt.Errorf("%w: temperature %v out of range", ErrMalformed, r.TemperatureC)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
