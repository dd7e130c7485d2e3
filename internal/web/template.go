package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/dehydrator/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"hhmm": func(minutes int) string {
		return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
	},
	"onOff": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Dehydrator</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.fault { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
img.lcd { image-rendering: pixelated; width: 256px; border: 1px solid #444; }
</style>
</head>
<body>
<h1>Dehydrator</h1>
{{if .HasDisplay}}<p><img class="lcd" src="/display.png" alt="display"></p>{{end}}

<h2>Session</h2>
<table>
<tr><th>Mode</th><td id="mode" class="{{if eq .Session.Mode.String "RUNNING"}}on{{else}}off{{end}}">{{.Session.Mode}}</td></tr>
<tr><th>Remaining</th><td>{{hhmm .Session.Remaining}}</td></tr>
<tr><th>Editing</th><td>{{.Session.Selection}}</td></tr>
</table>

<h2>Climate</h2>
<table>
<tr><th>Temperature</th><td>{{if .Heater.Measured}}{{printf "%.1f" .Heater.Temperature}} °C{{else}}n/a{{end}} (target {{printf "%.0f" .Heater.TargetTemp}} °C)</td></tr>
<tr><th>Humidity</th><td>{{if .Heater.Measured}}{{printf "%.1f" .Heater.Humidity}} %{{else}}n/a{{end}} (target {{printf "%.0f" .Heater.TargetHum}} %)</td></tr>
<tr><th>Heater</th><td class="{{if .Heater.Heater}}on{{else}}off{{end}}">{{onOff .Heater.Heater}}</td></tr>
<tr><th>Fan</th><td class="{{if .Heater.Fan}}on{{else}}off{{end}}">{{onOff .Heater.Fan}}</td></tr>
<tr><th>Next on-time</th><td>{{.Heater.OnDuration}}</td></tr>
<tr><th>Control loop</th><td class="{{if eq .LoopState "EXITED"}}fault{{end}}">{{.LoopState}}</td></tr>
<tr><th>Sensor faults</th><td>{{.Heater.SensorFaults}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Runs started</th><td>{{.Counts.RunStarted}}</td></tr>
<tr><th>Runs stopped</th><td>{{.Counts.RunStopped}}</td></tr>
<tr><th>Runs finished</th><td>{{.Counts.RunFinished}}</td></tr>
<tr><th>Input drops</th><td>{{.InputDrops}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Control window</th><td>{{.Config.WindowMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, hasDisplay bool) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime     time.Duration
		LoopState  string
		HasDisplay bool
	}{
		Snapshot:   snap,
		Uptime:     snap.Uptime(),
		LoopState:  status.ControlLoopState(snap),
		HasDisplay: hasDisplay,
	}
	indexTmpl.Execute(w, data)
}
