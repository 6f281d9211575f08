// Package device runs the tag's control loop: acquisition, alerting,
// link communication and power-down, driven one iteration at a time.
package device

// State is a control loop state.
type State int

const (
	StateSleeping State = iota
	StateWakingUp
	StateReadingSensors
	StateProcessingAlerts
	StateCommunicating
	StatePreparingSleep
)

func (s State) String() string {
	switch s {
	case StateSleeping:
		return "SLEEPING"
	case StateWakingUp:
		return "WAKING_UP"
	case StateReadingSensors:
		return "READING_SENSORS"
	case StateProcessingAlerts:
		return "PROCESSING_ALERTS"
	case StateCommunicating:
		return "COMMUNICATING"
	case StatePreparingSleep:
		return "PREPARING_SLEEP"
	}
	return "UNKNOWN"
}
