package logic

import "fmt"

// CommandKind identifies a control request sent to the device.
type CommandKind uint8

const (
	CmdNone CommandKind = iota
	CmdMute
	CmdSetVolume
	CmdPowerOff
	CmdForceSleep
	CmdRequestData
	CmdResetAlerts
)

func (k CommandKind) String() string {
	switch k {
	case CmdNone:
		return "NONE"
	case CmdMute:
		return "MUTE"
	case CmdSetVolume:
		return "SET_VOLUME"
	case CmdPowerOff:
		return "POWER_OFF"
	case CmdForceSleep:
		return "FORCE_SLEEP"
	case CmdRequestData:
		return "REQUEST_DATA"
	case CmdResetAlerts:
		return "RESET_ALERTS"
	}
	return "UNKNOWN"
}

// Command is a transient control request. Only the field matching Kind is
// meaningful: Mute for CmdMute, Volume for CmdSetVolume.
type Command struct {
	Kind   CommandKind
	Mute   bool
	Volume uint8
}

func (c Command) String() string {
	switch c.Kind {
	case CmdMute:
		return fmt.Sprintf("MUTE(%t)", c.Mute)
	case CmdSetVolume:
		return fmt.Sprintf("SET_VOLUME(%d)", c.Volume)
	}
	return c.Kind.String()
}

// Mute returns a mute/unmute command.
func Mute(on bool) Command { return Command{Kind: CmdMute, Mute: on} }

// SetVolume returns a volume command. Volume is a percentage 0-100.
func SetVolume(v uint8) Command { return Command{Kind: CmdSetVolume, Volume: v} }

// PowerOff returns a power-off command.
func PowerOff() Command { return Command{Kind: CmdPowerOff} }
