// Package pid implements the temperature PID used by the heater loop.
// The output is the heater on-time for the next control window.
package pid

import (
	"time"

	"github.com/chewxy/math32"
)

// Controller is a PID with derivative-on-measurement and integral clamping.
// It is not safe for concurrent use; the heater loop is its only caller.
type Controller struct {
	Kp, Ki, Kd float32

	setpoint float32
	limit    float32 // output ceiling in seconds; floor is 0

	integral  float32
	lastInput float32
	lastTime  time.Time
	primed    bool

	now func() time.Time
}

// New creates a Controller whose output is bounded to [0, limit].
func New(kp, ki, kd float32, limit time.Duration) *Controller {
	return &Controller{
		Kp:    kp,
		Ki:    ki,
		Kd:    kd,
		limit: float32(limit.Seconds()),
		now:   time.Now,
	}
}

// SetSetpoint sets the target temperature.
func (c *Controller) SetSetpoint(sp float32) { c.setpoint = sp }

// Setpoint returns the target temperature.
func (c *Controller) Setpoint() float32 { return c.setpoint }

// Reset clears the integral and derivative history.
func (c *Controller) Reset() {
	c.integral = 0
	c.primed = false
}

// Update feeds a measurement and returns the next on-time.
func (c *Controller) Update(input float32) time.Duration {
	now := c.now()
	var dt float32
	if c.primed {
		dt = float32(now.Sub(c.lastTime).Seconds())
	}

	e := c.setpoint - input
	p := c.Kp * e

	c.integral = c.clamp(c.integral + c.Ki*e*dt)

	var d float32
	if c.primed && dt > 0 {
		d = -c.Kd * (input - c.lastInput) / dt
	}

	out := c.clamp(p + c.integral + d)
	if math32.IsNaN(out) {
		out = 0
	}

	c.lastInput = input
	c.lastTime = now
	c.primed = true

	return time.Duration(float64(out) * float64(time.Second))
}

func (c *Controller) clamp(v float32) float32 {
	if math32.IsNaN(v) {
		return 0
	}
	return math32.Max(0, math32.Min(v, c.limit))
}
