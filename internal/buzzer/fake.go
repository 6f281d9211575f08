package buzzer

// Sound is one call recorded by FakeOutput.
type Sound struct {
	FreqHz int // 0 = silence
	Volume uint8
}

// FakeOutput records tone changes for test assertions.
type FakeOutput struct {
	// Sounds contains every Tone and Silence call in order.
	Sounds []Sound

	// Sounding is true between a Tone and the next Silence.
	Sounding bool

	// Err, if set, is returned by Tone and Silence.
	Err error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeOutput creates a FakeOutput for testing.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Tone records a tone.
func (f *FakeOutput) Tone(freqHz int, volume uint8) error {
	if f.Err != nil {
		return f.Err
	}
	f.Sounds = append(f.Sounds, Sound{FreqHz: freqHz, Volume: volume})
	f.Sounding = true
	return nil
}

// Silence records a silence.
func (f *FakeOutput) Silence() error {
	if f.Err != nil {
		return f.Err
	}
	f.Sounds = append(f.Sounds, Sound{})
	f.Sounding = false
	return nil
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.Closed = true
	return nil
}

// Tones returns the number of Tone calls recorded.
func (f *FakeOutput) Tones() int {
	n := 0
	for _, s := range f.Sounds {
		if s.FreqHz != 0 {
			n++
		}
	}
	return n
}

// Reset clears recorded sounds.
func (f *FakeOutput) Reset() {
	f.Sounds = nil
	f.Sounding = false
	f.Err = nil
}
