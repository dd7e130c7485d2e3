package heater

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/dehydrator/internal/gpio"
	"github.com/sweeney/dehydrator/internal/sensor"
)

const (
	testWindow = 40 * time.Millisecond
	testSample = 5 * time.Millisecond
	waitFor    = 2 * time.Second
	pollEvery  = 2 * time.Millisecond
)

// fakePID returns a fixed on-time and records the setpoint it was given.
type fakePID struct {
	mu       sync.Mutex
	out      time.Duration
	setpoint float32
	calls    int
	panicAt  int
}

func (p *fakePID) Update(float32) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.panicAt > 0 && p.calls >= p.panicAt {
		panic("pid: simulated fault")
	}
	return p.out
}

func (p *fakePID) SetSetpoint(sp float32) {
	p.mu.Lock()
	p.setpoint = sp
	p.mu.Unlock()
}

func (p *fakePID) Setpoint() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setpoint
}

type rig struct {
	loop   *Loop
	sensor *sensor.Fake
	pid    *fakePID
	heater *gpio.FakeActuator
	fan    *gpio.FakeActuator
}

func newRig(t *testing.T, on time.Duration, readings ...sensor.Reading) *rig {
	t.Helper()
	if len(readings) == 0 {
		readings = []sensor.Reading{{Temp: 40, Hum: 30}}
	}
	cfg := DefaultConfig()
	cfg.Window = testWindow
	cfg.SampleInterval = testSample

	r := &rig{
		sensor: sensor.NewFake(readings...),
		pid:    &fakePID{out: on},
		heater: gpio.NewFakeActuator(),
		fan:    gpio.NewFakeActuator(),
	}
	r.loop = New(cfg, r.sensor, r.pid, r.heater, r.fan)
	t.Cleanup(r.loop.Stop)
	return r
}

func (r *rig) assertSafe(t *testing.T) {
	t.Helper()
	assert.False(t, r.heater.On(), "heater left on")
	assert.False(t, r.fan.On(), "fan left on")
	assert.True(t, r.loop.Exited())
	assert.Zero(t, r.loop.OnDuration())
}

func TestClampOn(t *testing.T) {
	w := 10 * time.Second
	assert.Equal(t, time.Duration(0), clampOn(-time.Second, w))
	assert.Equal(t, 3*time.Second, clampOn(3*time.Second, w))
	assert.Equal(t, 5*time.Second, clampOn(5*time.Second, w))
	assert.Equal(t, 5*time.Second, clampOn(time.Hour, w))
}

func TestOnDurationBoundedByHalfWindow(t *testing.T) {
	r := newRig(t, time.Hour)
	r.loop.Start()

	require.Eventually(t, func() bool {
		return r.loop.OnDuration() == testWindow/2
	}, waitFor, pollEvery)
}

func TestVentInterlock(t *testing.T) {
	tests := []struct {
		name      string
		temp, hum float32
		want      bool
	}{
		{"humid and near target", 58, 30, true},
		{"humidity at hysteresis edge", 58, 21, false},
		{"humidity just above edge", 58, 21.5, true},
		{"temperature at band edge", 55, 30, false},
		{"temperature just inside band", 55.5, 30, true},
		{"dry", 58, 15, false},
		{"cold", 30, 80, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, vent(tt.temp, tt.hum, 60, 20, 1, 5))
		})
	}
}

func TestStopBlocksUntilSafe(t *testing.T) {
	r := newRig(t, testWindow/2, sensor.Reading{Temp: 58, Hum: 50})
	r.loop.SetEnabled(true)
	r.loop.Start()

	require.Eventually(t, r.heater.EverOn, waitFor, pollEvery)

	r.loop.Stop()
	r.assertSafe(t)
	assert.Equal(t, Stopped, r.loop.State())
	assert.False(t, r.loop.Status().Running)
}

func TestStopBeforeStartReturns(t *testing.T) {
	r := newRig(t, 0)

	done := make(chan struct{})
	go func() {
		r.loop.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Stop blocked on a loop that never started")
	}
	assert.Equal(t, Stopped, r.loop.State())
	assert.Empty(t, r.heater.History())
}

func TestStartIsIdempotent(t *testing.T) {
	r := newRig(t, 0)
	r.loop.Start()
	first := r.loop.Done()

	r.loop.Start()
	assert.True(t, first == r.loop.Done(), "second Start spawned another loop")
	assert.Equal(t, Running, r.loop.State())
}

func TestRestartAfterStop(t *testing.T) {
	r := newRig(t, 0)
	r.loop.Start()
	r.loop.Stop()
	require.True(t, r.loop.Exited())

	r.loop.Start()
	assert.False(t, r.loop.Exited())
	assert.Equal(t, Running, r.loop.State())

	calls := r.sensor.Calls()
	require.Eventually(t, func() bool { return r.sensor.Calls() > calls }, waitFor, pollEvery)
}

func TestDisabledLoopNeverHeats(t *testing.T) {
	r := newRig(t, testWindow/2)
	r.loop.Start()

	time.Sleep(3 * testWindow)
	r.loop.Stop()

	assert.False(t, r.heater.EverOn())
	assert.False(t, r.fan.EverOn())
}

func TestFanVentsDuringOnPhase(t *testing.T) {
	r := newRig(t, testWindow/2, sensor.Reading{Temp: 58, Hum: 50})
	r.loop.SetEnabled(true)
	r.loop.Start()

	require.Eventually(t, r.fan.EverOn, waitFor, pollEvery)
}

func TestFanStaysOffWhenCold(t *testing.T) {
	r := newRig(t, testWindow/2, sensor.Reading{Temp: 30, Hum: 80})
	r.loop.SetEnabled(true)
	r.loop.Start()

	require.Eventually(t, r.heater.EverOn, waitFor, pollEvery)
	r.loop.Stop()
	assert.False(t, r.fan.EverOn())
}

func TestSetpointReachesPID(t *testing.T) {
	r := newRig(t, 0)
	r.loop.SetTargetTemp(72)
	r.loop.Start()

	require.Eventually(t, func() bool { return r.pid.Setpoint() == 72 }, waitFor, pollEvery)
	assert.Equal(t, float32(72), r.loop.TargetTemp())
}

func TestTransientSensorFaultsAreCounted(t *testing.T) {
	bad := errors.New("i2c nack")
	r := newRig(t, 0,
		sensor.Reading{Err: bad},
		sensor.Reading{Err: bad},
		sensor.Reading{Temp: 45, Hum: 33},
	)
	r.loop.Start()

	require.Eventually(t, func() bool { return r.loop.Status().Measured }, waitFor, pollEvery)
	st := r.loop.Status()
	assert.Equal(t, uint64(2), st.SensorFaults)
	assert.Equal(t, float32(45), st.Temperature)
	assert.Equal(t, float32(33), st.Humidity)
	assert.Equal(t, Running, r.loop.State())
}

func TestSensorPanicTearsDown(t *testing.T) {
	r := newRig(t, testWindow/2, sensor.Reading{Temp: 50, Hum: 30})
	r.sensor.PanicAt = 8
	r.loop.SetEnabled(true)
	r.loop.Start()

	select {
	case <-r.loop.Done():
	case <-time.After(waitFor):
		t.Fatal("loop did not exit after sensor panic")
	}
	r.assertSafe(t)
}

func TestPIDPanicTearsDown(t *testing.T) {
	r := newRig(t, testWindow/2)
	r.pid.panicAt = 3
	r.loop.SetEnabled(true)
	r.loop.Start()

	select {
	case <-r.loop.Done():
	case <-time.After(waitFor):
		t.Fatal("loop did not exit after PID panic")
	}
	r.assertSafe(t)
}

func TestActuatorErrorIsFatal(t *testing.T) {
	r := newRig(t, 0)
	r.fan.SetFailure(errors.New("line busy"))
	r.loop.Start()

	select {
	case <-r.loop.Done():
	case <-time.After(waitFor):
		t.Fatal("loop did not exit after actuator error")
	}
	assert.True(t, r.loop.Exited())
	assert.False(t, r.heater.On())
}

func TestSetHeaterWrapsErrActuator(t *testing.T) {
	r := newRig(t, 0)
	r.heater.SetFailure(errors.New("line busy"))

	err := r.loop.setHeater(true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActuator)
	assert.Contains(t, err.Error(), "heater ON")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "STOPPED", Stopped.String())
	assert.Equal(t, "RUNNING", Running.String())
	assert.Equal(t, "STOPPING", Stopping.String())
}
