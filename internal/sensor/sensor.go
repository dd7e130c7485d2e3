// Package sensor provides the temperature/humidity sensor used by the heater
// loop. The real implementation is an AHT20 on the shared I2C bus.
package sensor

import (
	"errors"
	"fmt"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/aht20"
)

// ErrImplausible is returned when a reading is outside the sensor's rated range.
var ErrImplausible = errors.New("implausible reading")

// Rated AHT20 range.
const (
	minTemp = -40
	maxTemp = 85
)

// AHT20 reads an AHT20 over I2C. Temperature and Humidity hold the last good
// measurement.
type AHT20 struct {
	dev       aht20.Device
	temp, hum float32
}

// NewAHT20 initialises the device on bus. The bus must already be open.
func NewAHT20(bus drivers.I2C) *AHT20 {
	dev := aht20.New(bus)
	dev.Configure()
	return &AHT20{dev: dev}
}

// Measure triggers a conversion and stores the result.
func (s *AHT20) Measure() error {
	if err := s.dev.Read(); err != nil {
		return fmt.Errorf("aht20 read: %w", err)
	}
	t, h := s.dev.Celsius(), s.dev.RelHumidity()
	if t < minTemp || t > maxTemp || h < 0 || h > 100 {
		return fmt.Errorf("aht20: %w: %.1fC %.1f%%", ErrImplausible, t, h)
	}
	s.temp, s.hum = t, h
	return nil
}

// Temperature returns the last measured temperature in °C.
func (s *AHT20) Temperature() float32 { return s.temp }

// Humidity returns the last measured relative humidity in %.
func (s *AHT20) Humidity() float32 { return s.hum }
