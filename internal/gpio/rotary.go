package gpio

import "sync"

// Rotary holds the encoder's clamped integer value. Steps arrive from the
// encoder's edge context; Configure and Value are called from the main loop.
// Each change posts a coalesced notification on Changed.
type Rotary struct {
	mu      sync.Mutex
	lo, hi  int
	value   int
	changed chan struct{}
}

// NewRotary creates a Rotary bound to [lo, hi] starting at value.
func NewRotary(lo, hi, value int) *Rotary {
	r := &Rotary{changed: make(chan struct{}, 1)}
	r.Configure(lo, hi, value)
	return r
}

// Configure rebinds the bounds and current value. It does not notify.
func (r *Rotary) Configure(lo, hi, value int) {
	if hi < lo {
		lo, hi = hi, lo
	}
	r.mu.Lock()
	r.lo, r.hi = lo, hi
	r.value = clamp(value, lo, hi)
	r.mu.Unlock()
}

// Value returns the current value.
func (r *Rotary) Value() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// Changed is signalled after every step that moved the value.
func (r *Rotary) Changed() <-chan struct{} {
	return r.changed
}

// Step moves the value by delta, clamped to the bounds.
func (r *Rotary) Step(delta int) {
	r.mu.Lock()
	v := clamp(r.value+delta, r.lo, r.hi)
	moved := v != r.value
	r.value = v
	r.mu.Unlock()

	if !moved {
		return
	}
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
