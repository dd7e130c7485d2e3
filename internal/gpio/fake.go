package gpio

import "sync"

// FakeActuator is a test double for a digital output. It is safe for
// concurrent use.
type FakeActuator struct {
	mu sync.Mutex

	on      bool
	history []bool

	// SetError, if set, is returned by every Set call and the state is left
	// unchanged.
	SetError error
}

// NewFakeActuator creates an actuator in the OFF state.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// Set records the commanded state.
func (f *FakeActuator) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.on = on
	f.history = append(f.history, on)
	return nil
}

// On reports the last commanded state.
func (f *FakeActuator) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// History returns every successfully commanded state in order.
func (f *FakeActuator) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.history...)
}

// EverOn reports whether the output was ever switched on.
func (f *FakeActuator) EverOn() bool {
	for _, on := range f.History() {
		if on {
			return true
		}
	}
	return false
}

// SetFailure changes SetError under the lock.
func (f *FakeActuator) SetFailure(err error) {
	f.mu.Lock()
	f.SetError = err
	f.mu.Unlock()
}

// Reset clears history and turns the output off.
func (f *FakeActuator) Reset() {
	f.mu.Lock()
	f.on = false
	f.history = nil
	f.SetError = nil
	f.mu.Unlock()
}
