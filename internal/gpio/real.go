//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// encoderDebounce filters contact chatter on the encoder's A line.
const encoderDebounce = time.Millisecond

// Chip owns every line the dehydrator requests from a GPIO chip.
type Chip struct {
	chip    *gpiocdev.Chip
	outputs []*gpiocdev.Line
	inputs  []*gpiocdev.Line
}

// Open opens the named GPIO chip, e.g. "gpiochip0".
func Open(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// Output is a digital output line driven through the character device.
type Output struct {
	line *gpiocdev.Line
	pin  int
}

// Output requests pin as an output, initially low (OFF).
func (c *Chip) Output(pin int) (*Output, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	c.outputs = append(c.outputs, line)
	return &Output{line: line, pin: pin}, nil
}

// Set drives the line high (on) or low (off).
func (o *Output) Set(on bool) error {
	if err := o.line.SetValue(level(on)); err != nil {
		return fmt.Errorf("set pin %d: %w", o.pin, err)
	}
	return nil
}

// Watch requests pin as a pulled-up input and calls edge with the new level
// on every rising and falling edge. edge runs on the gpiocdev event goroutine
// and must not block.
func (c *Chip) Watch(pin int, edge func(high bool)) error {
	line, err := c.chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			edge(evt.Type == gpiocdev.LineEventRisingEdge)
		}))
	if err != nil {
		return fmt.Errorf("request input pin %d: %w", pin, err)
	}
	c.inputs = append(c.inputs, line)
	return nil
}

// Encoder feeds quadrature steps from the clk/dt pins into r. Each falling
// edge on clk is one detent; the dt level gives the direction.
func (c *Chip) Encoder(clkPin, dtPin int, r *Rotary) error {
	dt, err := c.chip.RequestLine(dtPin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return fmt.Errorf("request encoder dt pin %d: %w", dtPin, err)
	}
	c.inputs = append(c.inputs, dt)

	clk, err := c.chip.RequestLine(clkPin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithDebounce(encoderDebounce),
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
			v, err := dt.Value()
			if err != nil {
				return
			}
			if v == 1 {
				r.Step(1)
			} else {
				r.Step(-1)
			}
		}))
	if err != nil {
		return fmt.Errorf("request encoder clk pin %d: %w", clkPin, err)
	}
	c.inputs = append(c.inputs, clk)
	return nil
}

// Close drives every output low, returns all lines to inputs with pull-down
// (the Pi boot default) and releases the chip.
func (c *Chip) Close() error {
	var errs []error

	for _, l := range c.outputs {
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive pin %d low: %w", l.Offset(), err))
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", l.Offset(), err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", l.Offset(), err))
		}
	}
	for _, l := range c.inputs {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", l.Offset(), err))
		}
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
