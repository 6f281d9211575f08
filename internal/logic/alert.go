package logic

// Transition describes a change of the current alert level.
type Transition struct {
	From AlertLevel
	To   AlertLevel
}

// Escalated reports whether the level went up.
func (t Transition) Escalated() bool { return t.To > t.From }

// AlertEngine tracks the last emitted alert level so callers only act on
// level changes. The level mapping itself is the stateless AlertFor.
type AlertEngine struct {
	thresholds Thresholds
	current    AlertLevel
}

// NewAlertEngine creates an engine starting at AlertNone.
func NewAlertEngine(th Thresholds) *AlertEngine {
	return &AlertEngine{thresholds: th}
}

// Process maps co2ppm to a level and returns the transition if the level
// differs from the previously emitted one.
func (e *AlertEngine) Process(co2ppm float64) (Transition, bool) {
	next := AlertFor(co2ppm, e.thresholds)
	if next == e.current {
		return Transition{}, false
	}
	t := Transition{From: e.current, To: next}
	e.current = next
	return t, true
}

// Current returns the last emitted level.
func (e *AlertEngine) Current() AlertLevel {
	return e.current
}

// Reset clears the current level back to AlertNone.
func (e *AlertEngine) Reset() {
	e.current = AlertNone
}
