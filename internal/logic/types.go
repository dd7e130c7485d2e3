// Package logic contains the pure session logic of the dehydrator UI.
// This package has NO hardware dependencies (no GPIO, I2C, MQTT, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Mode is the run state of a drying session.
type Mode uint8

const (
	ModeIdle Mode = iota
	ModeRunning
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "IDLE"
	case ModeRunning:
		return "RUNNING"
	}
	return "UNKNOWN"
}

// Selection is the setting currently being edited with the rotary encoder.
type Selection uint8

const (
	SelectNone Selection = iota
	SelectTemp
	SelectHum
	SelectTime
)

func (s Selection) String() string {
	switch s {
	case SelectNone:
		return "NONE"
	case SelectTemp:
		return "TEMP"
	case SelectHum:
		return "HUM"
	case SelectTime:
		return "TIME"
	}
	return "UNKNOWN"
}

// Next returns the following selection in the cycle None→Temp→Hum→Time→None.
func (s Selection) Next() Selection {
	switch s {
	case SelectNone:
		return SelectTemp
	case SelectTemp:
		return SelectHum
	case SelectHum:
		return SelectTime
	}
	return SelectNone
}

// Range is an inclusive integer range for a rotary-adjustable setting.
type Range struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Clamp bounds v to the range.
func (r Range) Clamp(v int) int {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Config holds the session settings.
type Config struct {
	TempRange  Range         // target temperature, °C
	HumRange   Range         // target humidity, %RH
	TimeRange  Range         // session length, minutes
	Duration   int           // initial session length, minutes
	Inactivity time.Duration // selection falls back to None after this long untouched
	BlinkTicks int           // the selected field toggles every BlinkTicks ticks
}

// DefaultConfig returns the stock UI settings.
func DefaultConfig() Config {
	return Config{
		TempRange:  Range{Min: 20, Max: 90},
		HumRange:   Range{Min: 0, Max: 100},
		TimeRange:  Range{Min: 1, Max: 5959},
		Duration:   120,
		Inactivity: 10 * time.Second,
		BlinkTicks: 2,
	}
}

// Visible holds the blink state of each field. A hidden field is blanked
// by the renderer.
type Visible struct {
	Temp bool
	Hum  bool
	Time bool
}

func allVisible() Visible {
	return Visible{Temp: true, Hum: true, Time: true}
}

// Snapshot is what the renderer shows for one tick. It is advisory only.
type Snapshot struct {
	Timestamp   time.Time
	Temperature float32
	Humidity    float32
	Remaining   int // minutes
	Mode        Mode
	Selection   Selection
	Visible     Visible
	// Pending is true when Temperature and Humidity are targets being edited
	// rather than live measurements.
	Pending bool
}

// EventType represents a session transition event.
type EventType string

const (
	EventRunStarted  EventType = "RUN_STARTED"
	EventRunStopped  EventType = "RUN_STOPPED"
	EventRunFinished EventType = "RUN_FINISHED"
)

// Event represents a session transition to be published.
type Event struct {
	Timestamp  time.Time
	Type       EventType
	Mode       Mode
	TargetTemp float32
	TargetHum  float32
	Remaining  int
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	RunStarted  int
	RunStopped  int
	RunFinished int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
