package relay

// FakeActuator is a test double that records commanded states.
type FakeActuator struct {
	// Calls contains every value passed to Set, in order.
	Calls []bool

	// On is the current observable state.
	On bool

	// SetError, if set, will be returned by Set. The state is still recorded.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeActuator creates a FakeActuator in the off state.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// Set records the commanded state.
func (f *FakeActuator) Set(on bool) error {
	f.Calls = append(f.Calls, on)
	f.On = on
	return f.SetError
}

// State returns the last commanded state.
func (f *FakeActuator) State() bool {
	return f.On
}

// Close switches off and marks the actuator as closed.
func (f *FakeActuator) Close() error {
	f.On = false
	f.Closed = true
	return nil
}

// Reset clears recorded calls.
func (f *FakeActuator) Reset() {
	f.Calls = nil
	f.On = false
	f.SetError = nil
	f.Closed = false
}
