package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event            string     `json:"event,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	Mode             string     `json:"mode"`
	Selection        string     `json:"selection"`
	RemainingMinutes int        `json:"remaining_minutes"`
	Temperature      *float64   `json:"temperature"`
	Humidity         *float64   `json:"humidity"`
	TargetTemp       float64    `json:"target_temperature"`
	TargetHum        float64    `json:"target_humidity"`
	Heater           string     `json:"heater"`
	Fan              string     `json:"fan"`
	Heating          bool       `json:"heating_enabled"`
	ControlLoop      string     `json:"control_loop"`
	OnDurationMs     int64      `json:"on_duration_ms"`
	SensorFaults     uint64     `json:"sensor_faults"`
	InputDrops       uint64     `json:"input_drops"`
	UptimeSeconds    int64      `json:"uptime_seconds"`
	StartTime        string     `json:"start_time"`
	Timestamp        string     `json:"timestamp"`
	MQTT             MQTTStatus `json:"mqtt"`
	Counts           CountsJSON `json:"event_counts"`
	Config           ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	RunStarted  int `json:"run_started"`
	RunStopped  int `json:"run_stopped"`
	RunFinished int `json:"run_finished"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	WindowMs    int64  `json:"window_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

// ControlLoopState names the heater loop lifecycle for display.
func ControlLoopState(snap Snapshot) string {
	switch {
	case snap.Heater.Running:
		return "RUNNING"
	case snap.Heater.Exited:
		return "EXITED"
	}
	return "STOPPED"
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// round1 keeps one decimal, which is all the sensor resolves.
func round1(v float32) float64 {
	return math.Round(float64(v)*10) / 10
}

func buildInner(snap Snapshot) StatusInner {
	h := snap.Heater
	inner := StatusInner{
		Mode:             snap.Session.Mode.String(),
		Selection:        snap.Session.Selection.String(),
		RemainingMinutes: snap.Session.Remaining,
		TargetTemp:       round1(h.TargetTemp),
		TargetHum:        round1(h.TargetHum),
		Heater:           onOff(h.Heater),
		Fan:              onOff(h.Fan),
		Heating:          h.Enabled,
		ControlLoop:      ControlLoopState(snap),
		OnDurationMs:     h.OnDuration.Milliseconds(),
		SensorFaults:     h.SensorFaults,
		InputDrops:       snap.InputDrops,
		UptimeSeconds:    int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:        snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:        snap.Now.UTC().Format(time.RFC3339),
		MQTT:             MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			RunStarted:  snap.Counts.RunStarted,
			RunStopped:  snap.Counts.RunStopped,
			RunFinished: snap.Counts.RunFinished,
		},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			WindowMs:    snap.Config.WindowMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	// Measurements are null until the sensor has answered once.
	if h.Measured {
		t, hum := round1(h.Temperature), round1(h.Humidity)
		inner.Temperature = &t
		inner.Humidity = &hum
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
