package sensor

import (
	"errors"
	"sync"
)

// Reading is one scripted Measure result.
type Reading struct {
	Temp float32
	Hum  float32
	Err  error
}

// Fake is a test double that returns scripted readings. It is safe for
// concurrent use.
type Fake struct {
	mu sync.Mutex

	// Readings are consumed one per Measure call; the last one repeats.
	Readings []Reading

	// PanicAt, if > 0, makes the PanicAt-th Measure call panic.
	PanicAt int

	index     int
	calls     int
	temp, hum float32
}

// NewFake creates a Fake with the given readings.
func NewFake(readings ...Reading) *Fake {
	return &Fake{Readings: readings}
}

// Measure consumes the next scripted reading.
func (f *Fake) Measure() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.PanicAt > 0 && f.calls >= f.PanicAt {
		panic("sensor: simulated bus fault")
	}
	if len(f.Readings) == 0 {
		return errors.New("no readings configured")
	}
	r := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	if r.Err != nil {
		return r.Err
	}
	f.temp, f.hum = r.Temp, r.Hum
	return nil
}

// Temperature returns the last good temperature.
func (f *Fake) Temperature() float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.temp
}

// Humidity returns the last good humidity.
func (f *Fake) Humidity() float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hum
}

// Set replaces the script with a single repeating reading.
func (f *Fake) Set(r Reading) {
	f.mu.Lock()
	f.Readings = []Reading{r}
	f.index = 0
	f.mu.Unlock()
}

// Calls returns the number of Measure calls so far.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
