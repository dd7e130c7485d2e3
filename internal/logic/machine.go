package logic

import (
	"math"
	"time"
)

// Heater is the part of the heater control loop the session drives.
type Heater interface {
	SetEnabled(on bool)
	SetTargetTemp(v float32)
	SetTargetHum(v float32)
	TargetTemp() float32
	TargetHum() float32
	Measurements() (temp, hum float32)
}

// Rotary is the rotary encoder the session rebinds on each selection.
type Rotary interface {
	Configure(lo, hi, value int)
}

// Machine is the session state machine. It is driven entirely from the main
// loop and is not safe for concurrent use.
type Machine struct {
	cfg    Config
	heater Heater
	rotary Rotary

	mode       Mode
	sel        Selection
	duration   int       // remaining minutes
	lastUpdate time.Time // countdown reference
	deadline   time.Time // selection inactivity deadline; zero when disarmed
	visible    Visible
	blink      int

	events        []Event
	eventCounts   EventCounts
	startTime     time.Time
	lastHeartbeat time.Time
}

// NewMachine creates an idle session. The startTime is used for calculating
// uptime in heartbeat events.
func NewMachine(cfg Config, heater Heater, rotary Rotary, startTime time.Time) *Machine {
	if cfg.BlinkTicks <= 0 {
		cfg.BlinkTicks = 1
	}
	return &Machine{
		cfg:           cfg,
		heater:        heater,
		rotary:        rotary,
		duration:      cfg.TimeRange.Clamp(cfg.Duration),
		visible:       allVisible(),
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Mode returns the session mode.
func (m *Machine) Mode() Mode { return m.mode }

// Selection returns the setting being edited.
func (m *Machine) Selection() Selection { return m.sel }

// Remaining returns the remaining session length in minutes.
func (m *Machine) Remaining() int { return m.duration }

// EventCounts returns the run event totals since startup.
func (m *Machine) EventCounts() EventCounts { return m.eventCounts }

// StartStop handles a press of the start/stop button. It always ends any
// active selection.
func (m *Machine) StartStop(now time.Time) {
	m.selectNone()
	switch m.mode {
	case ModeIdle:
		m.mode = ModeRunning
		m.lastUpdate = now
		m.heater.SetEnabled(true)
		m.emit(now, EventRunStarted)
	case ModeRunning:
		m.mode = ModeIdle
		m.heater.SetEnabled(false)
		m.emit(now, EventRunStopped)
	}
}

// CycleSelection handles a press of the mode button, moving to the next
// setting in the cycle and binding the rotary encoder to it.
func (m *Machine) CycleSelection(now time.Time) {
	m.show(m.sel)
	m.sel = m.sel.Next()
	if m.sel == SelectNone {
		m.selectNone()
		return
	}
	r := m.rangeOf(m.sel)
	m.rotary.Configure(r.Min, r.Max, r.Clamp(m.valueOf(m.sel)))
	m.deadline = now.Add(m.cfg.Inactivity)
}

// RotaryChanged applies a new encoder value to the selected setting.
// It is ignored when nothing is selected.
func (m *Machine) RotaryChanged(value int, now time.Time) {
	if m.sel == SelectNone {
		return
	}
	value = m.rangeOf(m.sel).Clamp(value)
	switch m.sel {
	case SelectTemp:
		m.heater.SetTargetTemp(float32(value))
	case SelectHum:
		m.heater.SetTargetHum(float32(value))
	case SelectTime:
		m.duration = value
	}
	m.deadline = now.Add(m.cfg.Inactivity)
}

// Tick advances timers and returns the snapshot to render.
func (m *Machine) Tick(now time.Time) Snapshot {
	if m.sel != SelectNone && !m.deadline.IsZero() && !now.Before(m.deadline) {
		m.selectNone()
	}

	if m.mode == ModeRunning {
		m.countdown(now)
	}

	if m.sel != SelectNone {
		m.blink++
		if m.blink >= m.cfg.BlinkTicks {
			m.toggle(m.sel)
			m.blink = 0
		}
	}

	return m.Snapshot(now)
}

// Snapshot returns the current display state without advancing timers.
func (m *Machine) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		Timestamp: now,
		Remaining: m.duration,
		Mode:      m.mode,
		Selection: m.sel,
		Visible:   m.visible,
		Pending:   m.sel != SelectNone,
	}
	if s.Pending {
		s.Temperature = m.heater.TargetTemp()
		s.Humidity = m.heater.TargetHum()
	} else {
		s.Temperature, s.Humidity = m.heater.Measurements()
	}
	return s
}

// TakeEvents returns and clears the transitions recorded since the last call.
func (m *Machine) TakeEvents() []Event {
	ev := m.events
	m.events = nil
	return ev
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (m *Machine) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(m.lastHeartbeat) < interval {
		return nil
	}
	m.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(m.startTime),
		Counts:    m.eventCounts,
	}
}

// countdown subtracts whole elapsed minutes. lastUpdate moves by exactly
// the minutes consumed so the partial minute carries over.
func (m *Machine) countdown(now time.Time) {
	if elapsed := int(now.Sub(m.lastUpdate) / time.Minute); elapsed > 0 {
		m.duration -= elapsed
		m.lastUpdate = m.lastUpdate.Add(time.Duration(elapsed) * time.Minute)
	}
	if m.duration <= 0 {
		m.duration = 0
		m.mode = ModeIdle
		m.heater.SetEnabled(false)
		m.emit(now, EventRunFinished)
	}
}

func (m *Machine) selectNone() {
	m.sel = SelectNone
	m.visible = allVisible()
	m.blink = 0
	m.deadline = time.Time{}
}

func (m *Machine) rangeOf(s Selection) Range {
	switch s {
	case SelectTemp:
		return m.cfg.TempRange
	case SelectHum:
		return m.cfg.HumRange
	case SelectTime:
		return m.cfg.TimeRange
	}
	return Range{}
}

func (m *Machine) valueOf(s Selection) int {
	switch s {
	case SelectTemp:
		return round(m.heater.TargetTemp())
	case SelectHum:
		return round(m.heater.TargetHum())
	case SelectTime:
		return m.duration
	}
	return 0
}

func (m *Machine) show(s Selection) {
	switch s {
	case SelectTemp:
		m.visible.Temp = true
	case SelectHum:
		m.visible.Hum = true
	case SelectTime:
		m.visible.Time = true
	}
}

func (m *Machine) toggle(s Selection) {
	switch s {
	case SelectTemp:
		m.visible.Temp = !m.visible.Temp
	case SelectHum:
		m.visible.Hum = !m.visible.Hum
	case SelectTime:
		m.visible.Time = !m.visible.Time
	}
}

func (m *Machine) emit(now time.Time, t EventType) {
	m.events = append(m.events, Event{
		Timestamp:  now,
		Type:       t,
		Mode:       m.mode,
		TargetTemp: m.heater.TargetTemp(),
		TargetHum:  m.heater.TargetHum(),
		Remaining:  m.duration,
	})
	switch t {
	case EventRunStarted:
		m.eventCounts.RunStarted++
	case EventRunStopped:
		m.eventCounts.RunStopped++
	case EventRunFinished:
		m.eventCounts.RunFinished++
	}
}

func round(v float32) int {
	return int(math.Round(float64(v)))
}
