package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/parking-gate/internal/logic"
	"github.com/sweeney/parking-gate/internal/status"
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
	"distance": func(ls logic.LaneState) string {
		if !ls.HasReading {
			return "no reading"
		}
		return fmt.Sprintf("%d cm", ls.DistanceCm)
	},
	"lastUpdate": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Parking Gate</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.open { color: green; font-weight: bold; }
.closed { color: #888; }
.full { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Parking Gate</h1>

<h2>Occupancy</h2>
<table>
<tr><th>Vehicles</th><td id="count" class="{{if le .State.Occupancy.Available 0}}full{{end}}">{{.State.Occupancy.Count}} / {{.State.Occupancy.Capacity}}</td></tr>
<tr><th>Available</th><td>{{.State.Occupancy.Available}}</td></tr>
<tr><th>Last update</th><td>{{lastUpdate .State.Occupancy.LastEntryAt}}</td></tr>
</table>

<h2>Lanes</h2>
<table>
<tr><th>Entry gate</th><td id="entry-gate" class="{{if .State.Entry.Open}}open{{else}}closed{{end}}">{{if .State.Entry.Open}}OPEN{{else}}CLOSED{{end}}</td></tr>
<tr><th>Entry sensor</th><td>{{distance .State.Entry}}</td></tr>
<tr><th>Exit gate</th><td id="exit-gate" class="{{if .State.Exit.Open}}open{{else}}closed{{end}}">{{if .State.Exit.Open}}OPEN{{else}}CLOSED{{end}}</td></tr>
<tr><th>Exit sensor</th><td>{{distance .State.Exit}}</td></tr>
</table>

<h2>Today ({{.State.Daily.Date}})</h2>
<table>
<tr><th>Entries</th><td id="entries">{{.State.Daily.Entries}}</td></tr>
<tr><th>Exits</th><td id="exits">{{.State.Daily.Exits}}</td></tr>
</table>
{{if .CanReset}}<form method="post" action="/reset-daily"><button type="submit">Reset daily totals</button></form>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>{{.Config.Transport}}</th><td class="{{if .State.Connected}}connected{{else}}disconnected{{end}}">{{if .State.Connected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topics</th><td>{{.Config.TopicPrefix}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counters</h2>
<table>
<tr><th>Admitted</th><td>{{.State.Counters.Admitted}}</td></tr>
<tr><th>Released</th><td>{{.State.Counters.Released}}</td></tr>
<tr><th>Refused</th><td>{{.State.Counters.GuardNoOps}}</td></tr>
<tr><th>Persist failures</th><td>{{.State.Counters.PersistFailures}}</td></tr>
<tr><th>Ignored (degraded)</th><td>{{.State.Counters.IgnoredDegraded}}</td></tr>
<tr><th>Malformed</th><td>{{.Malformed}}</td></tr>
<tr><th>Dropped</th><td>{{.Dropped}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Instance</th><td>{{.InstanceID}}</td></tr>
<tr><th>Threshold</th><td>{{.Config.ThresholdCm}} cm</td></tr>
<tr><th>Timezone</th><td>{{.Config.Timezone}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, canReset bool) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		CanReset bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		CanReset: canReset,
	}
	indexTmpl.Execute(w, data)
}
