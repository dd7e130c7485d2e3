package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/dehydrator/internal/heater"
	"github.com/sweeney/dehydrator/internal/logic"
	"github.com/sweeney/dehydrator/internal/status"
)

type fakeFrame struct {
	err error
}

func (f *fakeFrame) WritePNG(w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := w.Write([]byte("\x89PNG\r\n\x1a\n"))
	return err
}

func newTestServer(t *testing.T, frame FrameSource) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		TickMs:      50,
		WindowMs:    10000,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":80",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, frame)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func running() (logic.Snapshot, heater.Status) {
	session := logic.Snapshot{
		Mode:      logic.ModeRunning,
		Selection: logic.SelectNone,
		Remaining: 119,
	}
	h := heater.Status{
		Temperature: 58.3,
		Humidity:    31,
		Measured:    true,
		TargetTemp:  60,
		TargetHum:   20,
		OnDuration:  3 * time.Second,
		Heater:      true,
		Enabled:     true,
		Running:     true,
	}
	return session, h
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	session, h := running()
	tr.Update(session, h, logic.EventCounts{RunStarted: 2, RunStopped: 1}, 3)
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Mode != "RUNNING" {
		t.Errorf("Mode: got %q, want RUNNING", sj.Status.Mode)
	}
	if sj.Status.RemainingMinutes != 119 {
		t.Errorf("RemainingMinutes: got %d, want 119", sj.Status.RemainingMinutes)
	}
	if sj.Status.Temperature == nil || *sj.Status.Temperature != 58.3 {
		t.Errorf("Temperature: got %v, want 58.3", sj.Status.Temperature)
	}
	if sj.Status.Heater != "ON" || sj.Status.Fan != "OFF" {
		t.Errorf("actuators: got heater=%s fan=%s", sj.Status.Heater, sj.Status.Fan)
	}
	if sj.Status.ControlLoop != "RUNNING" {
		t.Errorf("ControlLoop: got %q", sj.Status.ControlLoop)
	}
	if sj.Status.InputDrops != 3 {
		t.Errorf("InputDrops: got %d, want 3", sj.Status.InputDrops)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT connected")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.RunStarted != 2 || sj.Status.Counts.RunStopped != 1 {
		t.Errorf("Counts: got %+v", sj.Status.Counts)
	}
	if sj.Status.Config.WindowMs != 10000 {
		t.Errorf("WindowMs: got %d", sj.Status.Config.WindowMs)
	}
}

func TestJSONBeforeFirstMeasurement(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Temperature != nil || sj.Status.Humidity != nil {
		t.Error("expected null readings before first measurement")
	}
	if sj.Status.Mode != "IDLE" {
		t.Errorf("Mode: got %q, want IDLE", sj.Status.Mode)
	}
	if sj.Status.ControlLoop != "STOPPED" {
		t.Errorf("ControlLoop: got %q, want STOPPED", sj.Status.ControlLoop)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	session, h := running()
	tr.Update(session, h, logic.EventCounts{}, 0)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	html := string(body)
	for _, want := range []string{"RUNNING", "1:59", "58.3", "tcp://192.168.1.200:1883"} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(html, "/display.png") {
		t.Error("page should not reference display without a frame")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestHTMLShowsExitedControlLoop(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	session, h := running()
	h.Running = false
	h.Exited = true
	tr.Update(session, h, logic.EventCounts{}, 0)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `class="fault">EXITED`) {
		t.Error("expected exited control loop flagged as fault")
	}
}

func TestDisplayPNG(t *testing.T) {
	ts, _ := newTestServer(t, &fakeFrame{})

	resp, err := http.Get(ts.URL + "/display.png")
	if err != nil {
		t.Fatalf("GET /display.png: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type: got %q, want image/png", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(string(body), "\x89PNG") {
		t.Error("expected PNG signature")
	}
}

func TestDisplayPNGError(t *testing.T) {
	ts, _ := newTestServer(t, &fakeFrame{err: errors.New("encode")})

	resp, err := http.Get(ts.URL + "/display.png")
	if err != nil {
		t.Fatalf("GET /display.png: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 500 {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
}

func TestDisplayPNGWithoutFrame(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/display.png")
	if err != nil {
		t.Fatalf("GET /display.png: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestWritesAreRejected(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/index.json", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t, nil)

	resp1, _ := http.Get(ts.URL + "/index.json")
	var sj1 status.StatusJSON
	json.NewDecoder(resp1.Body).Decode(&sj1)
	resp1.Body.Close()
	if sj1.Status.Heating {
		t.Error("expected heating disabled initially")
	}

	session, h := running()
	tr.Update(session, h, logic.EventCounts{RunStarted: 1}, 0)
	tr.SetMQTTConnected(true)

	resp2, _ := http.Get(ts.URL + "/index.json")
	var sj2 status.StatusJSON
	json.NewDecoder(resp2.Body).Decode(&sj2)
	resp2.Body.Close()

	if !sj2.Status.Heating {
		t.Error("expected heating enabled after update")
	}
	if sj2.Status.Counts.RunStarted != 1 {
		t.Errorf("RunStarted: got %d, want 1", sj2.Status.Counts.RunStarted)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
