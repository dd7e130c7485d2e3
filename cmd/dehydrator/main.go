// Command dehydrator runs the food dehydrator controller: a PID heater loop,
// a rotary/button UI on a character LCD and read-only MQTT/HTTP telemetry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sweeney/dehydrator/internal/button"
	"github.com/sweeney/dehydrator/internal/config"
	"github.com/sweeney/dehydrator/internal/display"
	"github.com/sweeney/dehydrator/internal/gpio"
	"github.com/sweeney/dehydrator/internal/heater"
	"github.com/sweeney/dehydrator/internal/i2c"
	"github.com/sweeney/dehydrator/internal/logic"
	"github.com/sweeney/dehydrator/internal/mqtt"
	"github.com/sweeney/dehydrator/internal/pid"
	"github.com/sweeney/dehydrator/internal/sensor"
	"github.com/sweeney/dehydrator/internal/status"
	"github.com/sweeney/dehydrator/internal/web"
)

// Shutdown reasons that are not signal names.
const (
	reasonControlLoopExited = "CONTROL_LOOP_EXITED"
	reasonStartupFailed     = "STARTUP_FAILED"
)

func main() {
	configPath := flag.String("config", "/etc/dehydrator.yaml", "YAML config file (missing file means defaults)")
	broker := flag.String("broker", "", "MQTT broker address, overrides config (\"off\" disables)")
	httpAddr := flag.String("http", "", "HTTP status address, overrides config (\"off\" disables)")
	heartbeat := flag.Duration("heartbeat", 0, "Heartbeat interval, overrides config")
	printState := flag.Bool("print-state", false, "Print one sensor reading and exit")
	printConfig := flag.Bool("print-config", false, "Print the effective config and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.MQTT.Broker = offToEmpty(*broker)
		case "http":
			cfg.HTTP.Addr = offToEmpty(*httpAddr)
		case "heartbeat":
			cfg.MQTT.Heartbeat = *heartbeat
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *printConfig {
		data, err := cfg.Marshal()
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		os.Stdout.Write(data)
		return
	}
	if *printState {
		if err := printReading(cfg); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func offToEmpty(v string) string {
	if v == "off" {
		return ""
	}
	return v
}

func printReading(cfg *config.Config) error {
	bus, err := i2c.Open(cfg.Hardware.I2CDevice)
	if err != nil {
		return fmt.Errorf("init i2c: %w", err)
	}
	defer bus.Close()

	s := sensor.NewAHT20(bus)
	if err := s.Measure(); err != nil {
		return fmt.Errorf("read sensor: %w", err)
	}
	fmt.Printf("T: %.1fC, H: %.1f%%\n", s.Temperature(), s.Humidity())
	return nil
}

// daemon is everything runLoop and shutdown touch. Tests build one from fakes.
type daemon struct {
	heater    *heater.Loop
	machine   *logic.Machine
	input     *button.Source
	rotary    *gpio.Rotary
	display   display.Renderer
	tracker   *status.Tracker
	publisher mqtt.Publisher
	mqttState mqtt.ConnectionStatus // nil when MQTT is disabled

	// actuators are forced OFF again during shutdown.
	actuators []heater.Actuator
	// closers release hardware in order after everything else.
	closers []io.Closer

	renderFailing bool
	shutdownOnce  sync.Once
}

func run(cfg *config.Config) (err error) {
	d := &daemon{}
	started := false
	defer func() {
		// Any failure after the first output line was requested still has
		// to leave the heater and fan off.
		if err != nil && !started {
			d.shutdown(time.Now(), reasonStartupFailed)
		}
	}()

	chip, err := gpio.Open(cfg.Hardware.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	d.closers = append(d.closers, chip)

	heat, err := chip.Output(cfg.Hardware.Pins.Heat)
	if err != nil {
		return fmt.Errorf("init heater output: %w", err)
	}
	fan, err := chip.Output(cfg.Hardware.Pins.Fan)
	if err != nil {
		return fmt.Errorf("init fan output: %w", err)
	}
	d.actuators = []heater.Actuator{heat, fan}

	bus, err := i2c.Open(cfg.Hardware.I2CDevice)
	if err != nil {
		return fmt.Errorf("init i2c: %w", err)
	}
	d.closers = append(d.closers, bus)

	lcd, err := display.NewLCD(bus, cfg.Hardware.LCDAddress)
	if err != nil {
		return fmt.Errorf("init lcd: %w", err)
	}
	frame := display.NewFrame()
	d.display = display.Multi{lcd, frame}

	hc := cfg.HeaterConfig()
	ctl := pid.New(cfg.Control.PID.Kp, cfg.Control.PID.Ki, cfg.Control.PID.Kd, hc.Window/2)
	d.heater = heater.New(hc, sensor.NewAHT20(bus), ctl, heat, fan)

	d.rotary = gpio.NewRotary(0, 0, 0)
	d.input = button.NewSource(button.DefaultQueueSize, nil)
	startBtn := d.input.Register(cfg.Hardware.Pins.Start, cfg.Hardware.Debounce, true)
	modeBtn := d.input.Register(cfg.Hardware.Pins.Mode, cfg.Hardware.Debounce, true)

	startTime := time.Now()
	d.machine = logic.NewMachine(cfg.LogicConfig(), d.heater, d.rotary, startTime)
	bindButtons(d.input, startBtn, modeBtn, d.machine)

	d.tracker = status.NewTracker(startTime, status.Config{
		TickMs:      cfg.UI.Tick.Milliseconds(),
		WindowMs:    hc.Window.Milliseconds(),
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	})

	d.publisher = discard{}
	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			OnConnectionChange: d.tracker.SetMQTTConnected,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		d.publisher = pub
		d.mqttState = pub
	}

	// Edge callbacks go live last, once every handler is subscribed.
	for _, w := range []struct {
		pin int
		h   button.Handle
	}{{cfg.Hardware.Pins.Start, startBtn}, {cfg.Hardware.Pins.Mode, modeBtn}} {
		h := w.h
		if err := chip.Watch(w.pin, func(high bool) { d.input.Edge(h, high) }); err != nil {
			return fmt.Errorf("init button: %w", err)
		}
	}
	if err := chip.Encoder(cfg.Hardware.Pins.Clk, cfg.Hardware.Pins.DT, d.rotary); err != nil {
		return fmt.Errorf("init encoder: %w", err)
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, d.tracker, frame)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		d.closers = append([]io.Closer{closerFunc(func() error {
			return srv.Shutdown(context.Background())
		})}, d.closers...)
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	d.heater.Start()
	started = true
	d.publishLifecycle(startTime, "STARTUP", "")

	log.Printf("started: tick=%v window=%v broker=%q heartbeat=%v",
		cfg.UI.Tick, hc.Window, cfg.MQTT.Broker, cfg.MQTT.Heartbeat)

	ticker := time.NewTicker(cfg.UI.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	reason := d.runLoop(cfg.MQTT.Heartbeat, time.Now, ticker.C, sigCh)
	d.shutdown(time.Now(), reason)
	if reason == reasonControlLoopExited {
		return errors.New("heater control loop exited unexpectedly")
	}
	return nil
}

// bindButtons routes presses to the session: the start button toggles the
// run, the encoder switch cycles the edited field. Releases are ignored.
func bindButtons(src *button.Source, startBtn, modeBtn button.Handle, m *logic.Machine) {
	src.Subscribe(startBtn, func(ev button.Event) {
		if ev.Kind == button.Press {
			m.StartStop(ev.At)
		}
	})
	src.Subscribe(modeBtn, func(ev button.Event) {
		if ev.Kind == button.Press {
			m.CycleSelection(ev.At)
		}
	})
}

// runLoop drives the session until a signal arrives or the heater loop dies.
// It returns the shutdown reason.
func (d *daemon) runLoop(heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) string {
	heaterDone := d.heater.Done()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			return signalName(s)

		case <-heaterDone:
			log.Printf("heater control loop exited, shutting down")
			return reasonControlLoopExited

		case ev := <-d.input.Events():
			d.input.Deliver(ev)
			d.render(d.machine.Snapshot(now()))

		case <-d.rotary.Changed():
			t := now()
			d.machine.RotaryChanged(d.rotary.Value(), t)
			d.render(d.machine.Snapshot(t))

		case <-tick:
			t := now()
			d.input.Drain()
			snap := d.machine.Tick(t)
			d.render(snap)

			for _, event := range d.machine.TakeEvents() {
				log.Printf("event: %s (target=%.0fC/%.0f%% remaining=%d)",
					event.Type, event.TargetTemp, event.TargetHum, event.Remaining)
				if err := d.publisher.Publish(event); err != nil {
					log.Printf("publish error: %v", err)
				}
			}

			d.refresh(snap)

			if hb := d.machine.CheckHeartbeat(t, heartbeat); hb != nil {
				log.Printf("heartbeat: uptime=%v started=%d stopped=%d finished=%d",
					hb.Uptime, hb.Counts.RunStarted, hb.Counts.RunStopped, hb.Counts.RunFinished)
				d.publishLifecycle(hb.Timestamp, "HEARTBEAT", "")
			}
		}
	}
}

// render pushes snap to the display. Failures are logged once per outage.
func (d *daemon) render(snap logic.Snapshot) {
	err := d.display.Update(snap)
	if err != nil && !d.renderFailing {
		log.Printf("display update error: %v", err)
	}
	if err == nil && d.renderFailing {
		log.Printf("display recovered")
	}
	d.renderFailing = err != nil
}

func (d *daemon) refresh(snap logic.Snapshot) {
	d.tracker.Update(snap, d.heater.Status(), d.machine.EventCounts(), d.input.Drops())
	if d.mqttState != nil {
		d.tracker.SetMQTTConnected(d.mqttState.IsConnected())
	}
}

// publishLifecycle sends a retained system event carrying a status snapshot.
// Heartbeats are not retained.
func (d *daemon) publishLifecycle(at time.Time, event, reason string) {
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  at,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
		return
	}
	log.Printf("published %s event", event)
}

// shutdown runs the process teardown exactly once: stop the heater loop,
// blank the display, drive both outputs OFF, announce SHUTDOWN, then release
// the hardware. Every step tolerates the parts startup never created.
func (d *daemon) shutdown(at time.Time, reason string) {
	d.shutdownOnce.Do(func() {
		log.Printf("shutdown: reason=%s", reason)

		if d.heater != nil {
			d.heater.Stop()
		}
		if d.display != nil {
			if err := d.display.Clear(); err != nil {
				log.Printf("shutdown: clear display: %v", err)
			}
		}
		for _, a := range d.actuators {
			if err := a.Set(false); err != nil {
				log.Printf("shutdown: force output off: %v", err)
			}
		}
		if d.tracker != nil && d.machine != nil && d.heater != nil {
			d.refresh(d.machine.Snapshot(at))
		}
		if d.publisher != nil && d.tracker != nil {
			d.publishLifecycle(at, "SHUTDOWN", reason)
		}
		if d.publisher != nil {
			if err := d.publisher.Close(); err != nil {
				log.Printf("shutdown: close mqtt: %v", err)
			}
		}
		for _, c := range d.closers {
			if err := c.Close(); err != nil {
				log.Printf("shutdown: close: %v", err)
			}
		}
		log.Printf("shutdown complete")
	})
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// discard is the publisher used when MQTT is disabled.
type discard struct{}

func (discard) Publish(logic.Event) error            { return nil }
func (discard) PublishSystem(mqtt.SystemEvent) error { return nil }
func (discard) Close() error                         { return nil }
