//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// Open returns an error on non-Linux platforms.
func Open(name string) (*Chip, error) {
	return nil, errUnsupported
}

// Output is not available on non-Linux platforms.
type Output struct{}

// Output returns an error on non-Linux platforms.
func (c *Chip) Output(pin int) (*Output, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (o *Output) Set(on bool) error {
	return errUnsupported
}

// Watch returns an error on non-Linux platforms.
func (c *Chip) Watch(pin int, edge func(high bool)) error {
	return errUnsupported
}

// Encoder returns an error on non-Linux platforms.
func (c *Chip) Encoder(clkPin, dtPin int, r *Rotary) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (c *Chip) Close() error {
	return nil
}
