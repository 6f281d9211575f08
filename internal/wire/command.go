package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/sweeney/respiration-monitor/internal/logic"
)

// ErrUnknownCommand is returned for well-formed commands the device does not know.
var ErrUnknownCommand = errors.New("wire: unknown command")

// Legacy single-byte opcodes written to the command characteristic.
const (
	OpMute        byte = 1
	OpForceSleep  byte = 2
	OpRequestData byte = 3
	OpResetAlerts byte = 4
)

// CommandPayload is the JSON command object.
type CommandPayload struct {
	Cmd   string          `json:"cmd"`
	Value json.RawMessage `json:"value"`
}

// EncodeCommand serializes c for the command characteristic. Mute, volume and
// power-off use the JSON form; the remaining device commands use their
// legacy opcode.
func EncodeCommand(c logic.Command) ([]byte, error) {
	switch c.Kind {
	case logic.CmdMute:
		return json.Marshal(struct {
			Cmd   string `json:"cmd"`
			Value bool   `json:"value"`
		}{"mute", c.Mute})
	case logic.CmdSetVolume:
		if c.Volume > 100 {
			return nil, fmt.Errorf("encode command: volume %d out of range", c.Volume)
		}
		return json.Marshal(struct {
			Cmd   string `json:"cmd"`
			Value uint8  `json:"value"`
		}{"volume", c.Volume})
	case logic.CmdPowerOff:
		return []byte(`{"cmd":"power","value":"off"}`), nil
	case logic.CmdForceSleep:
		return []byte{OpForceSleep}, nil
	case logic.CmdRequestData:
		return []byte{OpRequestData}, nil
	case logic.CmdResetAlerts:
		return []byte{OpResetAlerts}, nil
	}
	return nil, fmt.Errorf("encode command %s: %w", c.Kind, ErrUnknownCommand)
}

// DecodeCommand parses a command written by the client: either a JSON
// command object or a legacy opcode, raw (0x01) or as ASCII digits ("1").
func DecodeCommand(p []byte) (logic.Command, error) {
	if len(p) == 1 && p[0] < '0' {
		return decodeOpcode(int(p[0]))
	}
	trimmed := bytes.TrimSpace(p)
	if len(trimmed) == 0 {
		return logic.Command{}, fmt.Errorf("%w: empty command", ErrMalformed)
	}
	if trimmed[0] == '{' {
		return decodeJSONCommand(trimmed)
	}
	n, err := strconv.Atoi(string(trimmed))
	if err != nil {
		return logic.Command{}, fmt.Errorf("%w: opcode %q", ErrUnknownCommand, trimmed)
	}
	return decodeOpcode(n)
}

func decodeOpcode(op int) (logic.Command, error) {
	switch op {
	case int(OpMute):
		return logic.Mute(true), nil
	case int(OpForceSleep):
		return logic.Command{Kind: logic.CmdForceSleep}, nil
	case int(OpRequestData):
		return logic.Command{Kind: logic.CmdRequestData}, nil
	case int(OpResetAlerts):
		return logic.Command{Kind: logic.CmdResetAlerts}, nil
	}
	return logic.Command{}, fmt.Errorf("%w: opcode %d", ErrUnknownCommand, op)
}

func decodeJSONCommand(p []byte) (logic.Command, error) {
	var in CommandPayload
	if err := json.Unmarshal(p, &in); err != nil {
		return logic.Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch in.Cmd {
	case "mute":
		var on bool
		if err := json.Unmarshal(in.Value, &on); err != nil {
			return logic.Command{}, fmt.Errorf("%w: mute value %s", ErrMalformed, in.Value)
		}
		return logic.Mute(on), nil
	case "volume":
		var v float64
		if err := json.Unmarshal(in.Value, &v); err != nil {
			return logic.Command{}, fmt.Errorf("%w: volume value %s", ErrMalformed, in.Value)
		}
		if v < 0 || v > 100 || v != float64(int(v)) {
			return logic.Command{}, fmt.Errorf("%w: volume %v out of range", ErrMalformed, v)
		}
		return logic.SetVolume(uint8(v)), nil
	case "power":
		var s string
		if err := json.Unmarshal(in.Value, &s); err != nil || s != "off" {
			return logic.Command{}, fmt.Errorf("%w: power %s", ErrUnknownCommand, in.Value)
		}
		return logic.PowerOff(), nil
	}
	return logic.Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, in.Cmd)
}
