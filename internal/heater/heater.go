// Package heater runs the time-proportioned heating control loop.
//
// The loop owns its own goroutine. Each control window it switches the heater
// on for the duration computed by the PID collaborator (at most half the
// window), optionally vents with the fan, and keeps sampling the sensor while
// it sleeps. However the goroutine ends, heater and fan are commanded off
// before Exited reports true.
package heater

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrActuator wraps a failed heater or fan write. It ends the control loop.
var ErrActuator = errors.New("actuator write failed")

// Sensor is a combined temperature/humidity sensor. Temperature and Humidity
// return the values of the last successful Measure.
type Sensor interface {
	Measure() error
	Temperature() float32
	Humidity() float32
}

// PID turns a measured temperature into the next heater on-time.
type PID interface {
	Update(measured float32) time.Duration
	SetSetpoint(setpoint float32)
}

// Actuator is a digital output such as the heater relay or the fan.
type Actuator interface {
	Set(on bool) error
}

// State is the lifecycle state of the loop goroutine.
type State uint8

const (
	Stopped State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	default:
		return "STOPPED"
	}
}

// Config holds the loop parameters. Temperatures are in °C, humidity in %RH.
type Config struct {
	Window         time.Duration // control window length
	SampleInterval time.Duration // sensor read interval during sleeps
	HumHysteresis  float32       // dead-band above target humidity before venting
	VentBand       float32       // vent only when target-measured temperature is below this
	TargetTemp     float32
	TargetHum      float32
}

// DefaultConfig returns the stock dehydrator settings.
func DefaultConfig() Config {
	return Config{
		Window:         10 * time.Second,
		SampleInterval: time.Second,
		HumHysteresis:  1,
		VentBand:       5,
		TargetTemp:     60,
		TargetHum:      20,
	}
}

// Status is a point-in-time copy of the loop state.
type Status struct {
	Temperature  float32
	Humidity     float32
	Measured     bool // at least one successful sample
	TargetTemp   float32
	TargetHum    float32
	OnDuration   time.Duration
	Heater       bool
	Fan          bool
	Enabled      bool
	Running      bool
	Exited       bool
	SensorFaults uint64
}

// values is the mutex-guarded part of the shared state.
type values struct {
	temp, hum  float32
	measured   bool
	targetTemp float32
	targetHum  float32
}

// Loop is the heater control loop. Flags and the on-duration are atomics;
// UI-side reads may be momentarily stale. Exited and Done are reliable.
type Loop struct {
	cfg    Config
	sensor Sensor
	pid    PID
	heater Actuator
	fan    Actuator

	enabled  atomic.Bool
	running  atomic.Bool
	exited   atomic.Bool
	heaterOn atomic.Bool
	fanOn    atomic.Bool
	onDur    atomic.Int64
	faults   atomic.Uint64

	mu   sync.Mutex // guards vals
	vals values

	ctl  sync.Mutex // serializes Start and Stop
	stop chan struct{}
	done chan struct{}
}

// New creates a stopped loop. Zero Window or SampleInterval fall back to the
// defaults.
func New(cfg Config, sensor Sensor, pid PID, heater, fan Actuator) *Loop {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	done := make(chan struct{})
	close(done)
	return &Loop{
		cfg:    cfg,
		sensor: sensor,
		pid:    pid,
		heater: heater,
		fan:    fan,
		vals: values{
			targetTemp: cfg.TargetTemp,
			targetHum:  cfg.TargetHum,
		},
		done: done,
	}
}

// Start spawns the loop goroutine. It is a no-op while a loop is running or
// still stopping.
func (l *Loop) Start() {
	l.ctl.Lock()
	defer l.ctl.Unlock()

	if l.running.Load() || !closed(l.done) {
		log.Printf("heater: start ignored, loop already running")
		return
	}
	l.exited.Store(false)
	l.onDur.Store(0)
	l.running.Store(true)
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(l.stop, l.done)
	log.Printf("heater: loop started: window=%v sample=%v", l.cfg.Window, l.cfg.SampleInterval)
}

// Stop cancels the loop and blocks until it has exited with heater and fan
// off. There is no timeout. Stop on a loop that is not running returns at
// once.
func (l *Loop) Stop() {
	l.ctl.Lock()
	l.running.Store(false)
	if l.stop != nil && !closed(l.stop) {
		close(l.stop)
	}
	done := l.done
	l.ctl.Unlock()

	<-done
}

// Done returns a channel that is closed once the current run has exited.
// Before the first Start it is already closed.
func (l *Loop) Done() <-chan struct{} {
	l.ctl.Lock()
	defer l.ctl.Unlock()
	return l.done
}

// Exited reports whether the most recent run has terminated.
func (l *Loop) Exited() bool { return l.exited.Load() }

// State reports the lifecycle state.
func (l *Loop) State() State {
	if l.running.Load() {
		return Running
	}
	if !closed(l.Done()) {
		return Stopping
	}
	return Stopped
}

// SetEnabled requests or cancels heating. The loop picks it up at the start
// of the next control window.
func (l *Loop) SetEnabled(on bool) { l.enabled.Store(on) }

// Enabled reports whether heating is requested.
func (l *Loop) Enabled() bool { return l.enabled.Load() }

// SetTargetTemp sets the temperature setpoint.
func (l *Loop) SetTargetTemp(v float32) {
	l.mu.Lock()
	l.vals.targetTemp = v
	l.mu.Unlock()
}

// SetTargetHum sets the humidity target.
func (l *Loop) SetTargetHum(v float32) {
	l.mu.Lock()
	l.vals.targetHum = v
	l.mu.Unlock()
}

// TargetTemp returns the temperature setpoint.
func (l *Loop) TargetTemp() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.vals.targetTemp
}

// TargetHum returns the humidity target.
func (l *Loop) TargetHum() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.vals.targetHum
}

// Measurements returns the last sampled temperature and humidity.
func (l *Loop) Measurements() (temp, hum float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.vals.temp, l.vals.hum
}

// OnDuration returns the on-time planned for the next window.
func (l *Loop) OnDuration() time.Duration { return time.Duration(l.onDur.Load()) }

// Status returns a copy of the loop state.
func (l *Loop) Status() Status {
	l.mu.Lock()
	v := l.vals
	l.mu.Unlock()
	return Status{
		Temperature:  v.temp,
		Humidity:     v.hum,
		Measured:     v.measured,
		TargetTemp:   v.targetTemp,
		TargetHum:    v.targetHum,
		OnDuration:   l.OnDuration(),
		Heater:       l.heaterOn.Load(),
		Fan:          l.fanOn.Load(),
		Enabled:      l.enabled.Load(),
		Running:      l.running.Load(),
		Exited:       l.exited.Load(),
		SensorFaults: l.faults.Load(),
	}
}

func (l *Loop) run(stop <-chan struct{}, done chan struct{}) {
	defer l.teardown(done)
	for l.running.Load() {
		if err := l.cycle(stop); err != nil {
			log.Printf("heater: control loop fault: %v", err)
			return
		}
	}
}

// teardown is deferred by run. It runs exactly once per run, including when
// the loop body panics.
func (l *Loop) teardown(done chan struct{}) {
	if r := recover(); r != nil {
		log.Printf("heater: control loop panic: %v", r)
	}
	if err := l.setHeater(false); err != nil {
		log.Printf("heater: teardown: %v", err)
	}
	if err := l.setFan(false); err != nil {
		log.Printf("heater: teardown: %v", err)
	}
	l.onDur.Store(0)
	l.running.Store(false)
	l.exited.Store(true)
	close(done)
	log.Printf("heater: control loop exited")
}

// cycle runs one control window.
func (l *Loop) cycle(stop <-chan struct{}) error {
	on := l.OnDuration()
	if l.enabled.Load() && on > 0 {
		if err := l.setHeater(true); err != nil {
			return err
		}
		if l.ventNeeded() {
			if err := l.setFan(true); err != nil {
				return err
			}
		}
		l.sleep(on, stop)
		if err := l.setHeater(false); err != nil {
			return err
		}
	} else {
		on = 0
	}
	l.sleep(l.cfg.Window-on, stop)
	return l.setFan(false)
}

// sleep waits for d, sampling the sensor every SampleInterval. It returns
// early once the loop is stopped.
func (l *Loop) sleep(d time.Duration, stop <-chan struct{}) {
	end := time.Now().Add(d)
	for l.running.Load() {
		remaining := time.Until(end)
		if remaining <= 0 {
			return
		}
		l.sample()

		t := time.NewTimer(min(l.cfg.SampleInterval, remaining))
		select {
		case <-stop:
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// sample reads the sensor and recomputes the next on-duration. A sensor error
// keeps the previous values.
func (l *Loop) sample() {
	if err := l.sensor.Measure(); err != nil {
		n := l.faults.Add(1)
		log.Printf("heater: sensor read failed (%d so far): %v", n, err)
		return
	}
	temp, hum := l.sensor.Temperature(), l.sensor.Humidity()

	l.mu.Lock()
	l.vals.temp = temp
	l.vals.hum = hum
	l.vals.measured = true
	target := l.vals.targetTemp
	l.mu.Unlock()

	l.pid.SetSetpoint(target)
	l.onDur.Store(int64(clampOn(l.pid.Update(temp), l.cfg.Window)))
}

func (l *Loop) ventNeeded() bool {
	l.mu.Lock()
	v := l.vals
	l.mu.Unlock()
	return vent(v.temp, v.hum, v.targetTemp, v.targetHum, l.cfg.HumHysteresis, l.cfg.VentBand)
}

func (l *Loop) setHeater(on bool) error {
	if err := l.heater.Set(on); err != nil {
		return fmt.Errorf("%w: heater %s: %w", ErrActuator, onOff(on), err)
	}
	l.heaterOn.Store(on)
	return nil
}

func (l *Loop) setFan(on bool) error {
	if err := l.fan.Set(on); err != nil {
		return fmt.Errorf("%w: fan %s: %w", ErrActuator, onOff(on), err)
	}
	l.fanOn.Store(on)
	return nil
}

// vent reports whether the fan should pull in air: humidity is above the
// hysteresis band and the temperature is already close to target. Both
// comparisons are strict.
func vent(temp, hum, targetTemp, targetHum, hyst, band float32) bool {
	return hum > targetHum+hyst && targetTemp-temp < band
}

// clampOn bounds d to [0, window/2].
func clampOn(d, window time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if limit := window / 2; d > limit {
		return limit
	}
	return d
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
