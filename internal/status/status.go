// Package status provides a thread-safe status tracker for the dehydrator daemon.
// It is read by HTTP handlers and by the MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/dehydrator/internal/heater"
	"github.com/sweeney/dehydrator/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	TickMs      int64
	WindowMs    int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Session       logic.Snapshot
	Heater        heater.Status
	Counts        logic.EventCounts
	InputDrops    uint64
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the session, heater loop state, event counts and input
// drops. Called from runLoop on every tick.
func (t *Tracker) Update(session logic.Snapshot, h heater.Status, counts logic.EventCounts, drops uint64) {
	t.mu.Lock()
	t.snap.Session = session
	t.snap.Heater = h
	t.snap.Counts = counts
	t.snap.InputDrops = drops
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
