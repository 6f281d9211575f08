package logic

import "time"

// Button turns raw samples of a push-button line into debounced one-shot
// press and hold events.
type Button struct {
	debounce time.Duration
	hold     time.Duration

	// Current stable (debounced) state, true = pressed
	down bool
	// Whether the raw line currently disagrees with the stable state
	changing bool
	// Time when the disagreement was first observed
	changeSince time.Time
	// Time the current press started
	pressedSince time.Time

	pressed   bool
	held      bool
	holdFired bool
}

// NewButton creates a debouncer. A change is accepted only after it has been
// stable for debounce; a press lasting hold raises the held event.
func NewButton(debounce, hold time.Duration) *Button {
	return &Button{debounce: debounce, hold: hold}
}

// Sample feeds one raw reading of the line (true = pressed) taken at now.
func (b *Button) Sample(raw bool, now time.Time) {
	if raw == b.down {
		// Bounce settled back to the stable state
		b.changing = false
	} else if !b.changing {
		b.changing = true
		b.changeSince = now
	} else if now.Sub(b.changeSince) >= b.debounce {
		b.down = raw
		b.changing = false
		if raw {
			b.pressed = true
			b.pressedSince = b.changeSince
			b.holdFired = false
		}
	}

	if b.down && !b.holdFired && now.Sub(b.pressedSince) >= b.hold {
		b.held = true
		b.holdFired = true
	}
}

// Pressed reports a debounced press once, then clears it.
func (b *Button) Pressed() bool {
	p := b.pressed
	b.pressed = false
	return p
}

// Held reports a completed long hold once, then clears it. It does not fire
// again until the button is released and pressed again.
func (b *Button) Held() bool {
	h := b.held
	b.held = false
	return h
}

// Down returns the debounced line state.
func (b *Button) Down() bool {
	return b.down
}

// PressedSince returns when the current (or last) press started.
func (b *Button) PressedSince() time.Time {
	return b.pressedSince
}

// Reset forgets any pending change and latched events, e.g. after wake.
func (b *Button) Reset(down bool) {
	*b = Button{debounce: b.debounce, hold: b.hold, down: down, holdFired: down}
}
