// Package i2c provides a Linux i2c-dev bus implementing drivers.I2C, shared
// by the sensor and the LCD.
package i2c

import "errors"

// DefaultDevice is the bus exposed on the Raspberry Pi header.
const DefaultDevice = "/dev/i2c-1"

// ErrClosed is returned by Tx after Close.
var ErrClosed = errors.New("i2c: bus closed")
