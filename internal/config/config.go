// Package config loads the dehydrator configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/dehydrator/internal/gpio"
	"github.com/sweeney/dehydrator/internal/heater"
	"github.com/sweeney/dehydrator/internal/i2c"
	"github.com/sweeney/dehydrator/internal/logic"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config represents the application configuration.
type Config struct {
	Hardware HardwareConfig `yaml:"hardware"`
	Control  ControlConfig  `yaml:"control"`
	UI       UIConfig       `yaml:"ui"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// HardwareConfig describes where the peripherals are attached.
type HardwareConfig struct {
	Chip       string        `yaml:"chip"`
	I2CDevice  string        `yaml:"i2c_device"`
	LCDAddress uint8         `yaml:"lcd_address"`
	Debounce   time.Duration `yaml:"debounce"`
	Pins       PinConfig     `yaml:"pins"`
}

// PinConfig holds BCM line offsets.
type PinConfig struct {
	Heat  int `yaml:"heat"`
	Fan   int `yaml:"fan"`
	Start int `yaml:"start"`
	Mode  int `yaml:"mode"`
	Clk   int `yaml:"clk"`
	DT    int `yaml:"dt"`
}

// ControlConfig contains the heater loop parameters.
type ControlConfig struct {
	Window         time.Duration `yaml:"window"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	TargetTemp     float32       `yaml:"target_temp"`
	TargetHum      float32       `yaml:"target_hum"`
	HumHysteresis  float32       `yaml:"hum_hysteresis"`
	VentBand       float32       `yaml:"vent_band"` // vent only within this many °C of target
	PID            PIDConfig     `yaml:"pid"`
}

// PIDConfig contains the PID gains.
type PIDConfig struct {
	Kp float32 `yaml:"kp"`
	Ki float32 `yaml:"ki"`
	Kd float32 `yaml:"kd"`
}

// UIConfig contains the session and display parameters.
type UIConfig struct {
	Tick       time.Duration `yaml:"tick"`
	Duration   int           `yaml:"duration"` // minutes
	Inactivity time.Duration `yaml:"inactivity"`
	BlinkTicks int           `yaml:"blink_ticks"`
	TempRange  logic.Range   `yaml:"temp_range"`
	HumRange   logic.Range   `yaml:"hum_range"`
	TimeRange  logic.Range   `yaml:"time_range"`
}

// MQTTConfig contains telemetry settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"client_id"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// HTTPConfig contains the status server settings. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	hc := heater.DefaultConfig()
	ui := logic.DefaultConfig()
	return &Config{
		Hardware: HardwareConfig{
			Chip:       gpio.DefaultChip,
			I2CDevice:  i2c.DefaultDevice,
			LCDAddress: 0x27,
			Debounce:   5 * time.Millisecond,
			Pins: PinConfig{
				Heat:  gpio.DefaultPinHeat,
				Fan:   gpio.DefaultPinFan,
				Start: gpio.DefaultPinStart,
				Mode:  gpio.DefaultPinMode,
				Clk:   gpio.DefaultPinClk,
				DT:    gpio.DefaultPinDT,
			},
		},
		Control: ControlConfig{
			Window:         hc.Window,
			SampleInterval: hc.SampleInterval,
			TargetTemp:     hc.TargetTemp,
			TargetHum:      hc.TargetHum,
			HumHysteresis:  hc.HumHysteresis,
			VentBand:       hc.VentBand,
			PID:            PIDConfig{Kp: 5, Ki: 0, Kd: 20},
		},
		UI: UIConfig{
			Tick:       50 * time.Millisecond,
			Duration:   ui.Duration,
			Inactivity: ui.Inactivity,
			BlinkTicks: ui.BlinkTicks,
			TempRange:  ui.TempRange,
			HumRange:   ui.HumRange,
			TimeRange:  ui.TimeRange,
		},
		MQTT: MQTTConfig{
			ClientID:  "dehydrator",
			Heartbeat: 15 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Validate checks the values that would otherwise break the control loop
// or the UI.
func (c *Config) Validate() error {
	ctl := c.Control
	switch {
	case ctl.Window <= 0:
		return fmt.Errorf("%w: control.window must be positive", ErrInvalid)
	case ctl.SampleInterval <= 0 || ctl.SampleInterval > ctl.Window:
		return fmt.Errorf("%w: control.sample_interval must be in (0, window]", ErrInvalid)
	case ctl.HumHysteresis < 0:
		return fmt.Errorf("%w: control.hum_hysteresis must not be negative", ErrInvalid)
	case ctl.VentBand < 0:
		return fmt.Errorf("%w: control.vent_band must not be negative", ErrInvalid)
	case c.UI.Tick <= 0:
		return fmt.Errorf("%w: ui.tick must be positive", ErrInvalid)
	case c.UI.BlinkTicks <= 0:
		return fmt.Errorf("%w: ui.blink_ticks must be positive", ErrInvalid)
	}

	ranges := []struct {
		name string
		r    logic.Range
	}{
		{"ui.temp_range", c.UI.TempRange},
		{"ui.hum_range", c.UI.HumRange},
		{"ui.time_range", c.UI.TimeRange},
	}
	for _, rr := range ranges {
		if rr.r.Min > rr.r.Max {
			return fmt.Errorf("%w: %s min %d above max %d", ErrInvalid, rr.name, rr.r.Min, rr.r.Max)
		}
	}
	if c.UI.TimeRange.Min < 1 {
		return fmt.Errorf("%w: ui.time_range must start at 1 minute or more", ErrInvalid)
	}
	if t := int(ctl.TargetTemp); t < c.UI.TempRange.Min || t > c.UI.TempRange.Max {
		return fmt.Errorf("%w: control.target_temp %.1f outside ui.temp_range", ErrInvalid, ctl.TargetTemp)
	}
	if h := int(ctl.TargetHum); h < c.UI.HumRange.Min || h > c.UI.HumRange.Max {
		return fmt.Errorf("%w: control.target_hum %.1f outside ui.hum_range", ErrInvalid, ctl.TargetHum)
	}

	p := c.Hardware.Pins
	seen := map[int]string{}
	for _, pin := range []struct {
		name string
		n    int
	}{{"heat", p.Heat}, {"fan", p.Fan}, {"start", p.Start}, {"mode", p.Mode}, {"clk", p.Clk}, {"dt", p.DT}} {
		if pin.n < 0 {
			return fmt.Errorf("%w: hardware.pins.%s is negative", ErrInvalid, pin.name)
		}
		if other, ok := seen[pin.n]; ok {
			return fmt.Errorf("%w: hardware.pins.%s and %s share line %d", ErrInvalid, other, pin.name, pin.n)
		}
		seen[pin.n] = pin.name
	}
	return nil
}

// HeaterConfig converts the control section for the heater loop.
func (c *Config) HeaterConfig() heater.Config {
	return heater.Config{
		Window:         c.Control.Window,
		SampleInterval: c.Control.SampleInterval,
		HumHysteresis:  c.Control.HumHysteresis,
		VentBand:       c.Control.VentBand,
		TargetTemp:     c.Control.TargetTemp,
		TargetHum:      c.Control.TargetHum,
	}
}

// LogicConfig converts the UI section for the session state machine.
func (c *Config) LogicConfig() logic.Config {
	return logic.Config{
		TempRange:  c.UI.TempRange,
		HumRange:   c.UI.HumRange,
		TimeRange:  c.UI.TimeRange,
		Duration:   c.UI.Duration,
		Inactivity: c.UI.Inactivity,
		BlinkTicks: c.UI.BlinkTicks,
	}
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Hardware.Chip == "" {
		c.Hardware.Chip = def.Hardware.Chip
	}
	if c.Hardware.I2CDevice == "" {
		c.Hardware.I2CDevice = def.Hardware.I2CDevice
	}
	if c.Hardware.LCDAddress == 0 {
		c.Hardware.LCDAddress = def.Hardware.LCDAddress
	}
	if c.Hardware.Debounce == 0 {
		c.Hardware.Debounce = def.Hardware.Debounce
	}

	if c.Control.Window == 0 {
		c.Control.Window = def.Control.Window
	}
	if c.Control.SampleInterval == 0 {
		c.Control.SampleInterval = def.Control.SampleInterval
	}

	if c.UI.Tick == 0 {
		c.UI.Tick = def.UI.Tick
	}
	if c.UI.Duration == 0 {
		c.UI.Duration = def.UI.Duration
	}
	if c.UI.Inactivity == 0 {
		c.UI.Inactivity = def.UI.Inactivity
	}
	if c.UI.BlinkTicks == 0 {
		c.UI.BlinkTicks = def.UI.BlinkTicks
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
}
