package web

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/sweeney/climate-control/internal/climate"
	"github.com/sweeney/climate-control/internal/status"
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
	"num": func(v float64, unit string) string {
		if math.IsNaN(v) {
			return "unreadable"
		}
		return fmt.Sprintf("%.2f%s", v, unit)
	},
	"ms": func(ms int64) string {
		return (time.Duration(ms) * time.Millisecond).String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Climate Control</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.degraded { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Climate Control</h1>

<h2>Ventilation</h2>
<table>
<tr><th>State</th><td id="ventilation" class="{{.VentClass}}">{{.Vent}}</td></tr>
<tr><th>Last cycle</th><td>{{if .Ready}}{{.LastCycle.UTC.Format "2006-01-02T15:04:05Z"}}{{else}}pending{{end}}</td></tr>
<tr><th>Sensors</th><td{{if .Degraded}} class="degraded"{{end}}>{{if .Degraded}}DEGRADED ({{.ConsecutiveDegraded}} in a row){{else}}ok{{end}}</td></tr>
</table>

{{if .Ready}}
<h2>Readings</h2>
<table>
<tr><th></th><td>Inside</td><td>Outside</td></tr>
<tr><th>Temperature</th><td>{{num .Inside.TemperatureC "°C"}}</td><td>{{num .Outside.TemperatureC "°C"}}</td></tr>
<tr><th>Relative humidity</th><td>{{num .Inside.RelativeHumidity "%"}}</td><td>{{num .Outside.RelativeHumidity "%"}}</td></tr>
<tr><th>Absolute humidity</th><td>{{num .InsideAH " g/m³"}}</td><td>{{num .OutsideAH " g/m³"}}</td></tr>
</table>
{{end}}

<h2>Cycle Counts</h2>
<table>
<tr><th>Cycles</th><td>{{.Counts.Cycles}}</td></tr>
<tr><th>Ventilation ON</th><td>{{.Counts.VentilationOn}}</td></tr>
<tr><th>Degraded</th><td>{{.Counts.Degraded}}</td></tr>
<tr><th>Sensor faults</th><td>{{.Counts.SensorFaults}}</td></tr>
<tr><th>Log errors</th><td>{{.Counts.LogErrors}}</td></tr>
</table>

{{if .Config.Broker}}
<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>
{{end}}

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Session</th><td>{{.Config.Session}}</td></tr>
<tr><th>Interval</th><td>{{ms .Config.IntervalMs}}</td></tr>
<tr><th>Retries</th><td>{{.Config.MaxAttempts}} x {{ms .Config.RetryDelayMs}}</td></tr>
<tr><th>Escalate after</th><td>{{if eq .Config.EscalateAfter 0}}disabled{{else}}{{.Config.EscalateAfter}} cycles{{end}}</td></tr>
<tr><th>Policy</th><td>{{.Config.Policy}}</td></tr>
<tr><th>Journal</th><td>{{.Config.Storage}} ({{.Config.Rotation}})</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	vent, class := "UNKNOWN", "unknown"
	if snap.Ready() {
		vent = string(climate.StateOf(snap.Ventilation))
		class = "off"
		if snap.Ventilation {
			class = "on"
		}
	}

	data := struct {
		status.Snapshot
		Uptime    time.Duration
		Ready     bool
		Vent      string
		VentClass string
	}{
		Snapshot:  snap,
		Uptime:    snap.Uptime(),
		Ready:     snap.Ready(),
		Vent:      vent,
		VentClass: class,
	}
	indexTmpl.Execute(w, data)
}
