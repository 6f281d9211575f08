package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/respiration-monitor/internal/logic"
	"github.com/sweeney/respiration-monitor/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"alertClass": func(l logic.AlertLevel) string {
		switch {
		case l >= logic.AlertHigh:
			return "alarm"
		case l >= logic.AlertLow:
			return "warn"
		}
		return "ok"
	},
	"muted":    func(s logic.StatusFlags) bool { return s.Has(logic.StatusMuted) },
	"sounding": func(s logic.StatusFlags) bool { return s.Has(logic.StatusSounding) },
	"stale":    func(s logic.StatusFlags) bool { return s.Has(logic.StatusStale) },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Respiration Monitor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; }
.warn { color: orange; font-weight: bold; }
.alarm { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
button { font-family: monospace; margin-right: 4px; }
</style>
</head>
<body>
<h1>Respiration Monitor{{if .Live}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Tag</h2>
<table>
<tr><th>Session</th><td id="session-state" class="{{if eq .Session.State "CONNECTED"}}connected{{else}}disconnected{{end}}">{{stateOrUnknown .Session.State}}</td></tr>
<tr><th>Peer</th><td id="session-peer">{{if .Session.Peer}}{{.Session.Peer}}{{else}}none{{end}}</td></tr>
<tr><th>Reconnect attempts</th><td id="session-attempts">{{.Session.Attempts}}</td></tr>
</table>

<h2>Reading</h2>
<table>
{{if .HaveReading}}<tr><th>CO2</th><td id="co2" class="{{alertClass .Latest.Alert}}">{{printf "%.0f" .Latest.CO2PPM}} ppm</td></tr>
<tr><th>Alert</th><td id="alert" class="{{alertClass .Latest.Alert}}">{{.Latest.Alert}}</td></tr>
<tr><th>Humidity</th><td id="humidity">{{printf "%.1f" .Latest.HumidityPct}} %</td></tr>
<tr><th>Temperature</th><td id="temperature">{{printf "%.1f" .Latest.TemperatureC}} &deg;C</td></tr>
<tr><th>Buzzer</th><td id="buzzer">{{if muted .Latest.Status}}muted{{else if sounding .Latest.Status}}sounding{{else}}quiet{{end}}{{if stale .Latest.Status}} (stale){{end}}</td></tr>
<tr><th>Received</th><td id="received-at">{{.LatestAt.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{else}}<tr><th>CO2</th><td id="co2" class="unknown">no reading yet</td></tr>{{end}}
</table>

<h2>Commands</h2>
<p>
<button onclick="cmd('mute')">Mute</button>
<button onclick="cmd('unmute')">Unmute</button>
<button onclick="cmd('volume/' + document.getElementById('volume').value)">Volume</button>
<input id="volume" type="number" min="0" max="100" value="80" size="3">
<button onclick="cmd('power-off')">Power off</button>
</p>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Packets</h2>
<table>
<tr><th>Received</th><td>{{.Received}}</td></tr>
<tr><th>Rejected</th><td>{{.Rejected}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>History</th><td>{{.Config.HistorySize}} readings</td></tr>
<tr><th>Database</th><td>{{.Config.DBPath}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/history.json">History</a> | <a href="/metrics">Metrics</a></p>
<script>
function cmd(name) {
  fetch("/command/" + name, { method: "POST" });
}
</script>
{{if .Live}}
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var proto = location.protocol === "https:" ? "wss://" : "ws://";

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function setText(id, text) {
    var el = document.getElementById(id);
    if (el) { el.textContent = text; }
  }

  function connect() {
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var msg = JSON.parse(ev.data);
        if (msg.type === "reading") {
          var r = msg.reading;
          var cls = r.alert_level >= 3 ? "alarm" : r.alert_level >= 1 ? "warn" : "ok";
          setText("co2", r.co2_ppm.toFixed(0) + " ppm");
          document.getElementById("co2").className = cls;
          setText("alert", r.alert);
          setText("humidity", r.humidity_pct.toFixed(1) + " %");
          setText("temperature", r.temperature_c.toFixed(1) + " °C");
          setText("buzzer", (r.muted ? "muted" : r.sounding ? "sounding" : "quiet") + (r.stale ? " (stale)" : ""));
          setText("received-at", r.timestamp);
        } else if (msg.type === "session") {
          setText("session-state", msg.session.state);
          document.getElementById("session-state").className = msg.session.state === "CONNECTED" ? "connected" : "disconnected";
          setText("session-peer", msg.session.peer || "none");
          setText("session-attempts", msg.session.attempts);
        }
      } catch (e) {}
    };
  }
  connect();
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, live bool) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Live   bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Live:     live,
	}
	indexTmpl.Execute(w, data)
}
