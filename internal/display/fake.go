package display

import (
	"errors"
	"sync"

	"github.com/sweeney/dehydrator/internal/logic"
)

// Fake records every snapshot it is given. It is safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	updates []logic.Snapshot
	clears  int

	// Err, if set, is returned by Update.
	Err error
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) Update(s logic.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, s)
	return f.Err
}

func (f *Fake) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

// Updates returns a copy of the recorded snapshots.
func (f *Fake) Updates() []logic.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Snapshot(nil), f.updates...)
}

// Last returns the most recent snapshot.
func (f *Fake) Last() (logic.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return logic.Snapshot{}, errors.New("no updates")
	}
	return f.updates[len(f.updates)-1], nil
}

// Clears returns how many times Clear was called.
func (f *Fake) Clears() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}
