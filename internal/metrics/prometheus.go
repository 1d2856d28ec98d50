package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPrometheus formats metrics in Prometheus text format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func FormatPrometheus(snap Snapshot) string {
	var sb strings.Builder

	gauge(&sb, "rizztempo_uptime_seconds", "Time since the daemon started", fmt.Sprintf("%d", snap.Uptime))

	labelled(&sb, "rizztempo_http_requests_total", "Daemon API requests by route", "counter", "route", snap.TotalRequests)
	labelled(&sb, "rizztempo_http_request_errors_total", "Daemon API requests answered with an error status", "counter", "route", snap.RequestErrors)
	labelled(&sb, "rizztempo_http_request_duration_ms_total", "Total daemon API request duration in milliseconds", "counter", "route", snap.TotalRequestsDur)

	labelled(&sb, "rizztempo_remote_calls_total", "Backend requests by operation and target", "counter", "call", snap.RemoteCalls)
	labelled(&sb, "rizztempo_remote_errors_total", "Failed backend requests", "counter", "call", snap.RemoteErrors)
	labelled(&sb, "rizztempo_remote_latency_ms_total", "Total backend latency in milliseconds", "counter", "call", snap.RemoteLatency)

	sb.WriteString("# HELP rizztempo_sessions_started_total Practice timers started\n")
	sb.WriteString("# TYPE rizztempo_sessions_started_total counter\n")
	sb.WriteString(fmt.Sprintf("rizztempo_sessions_started_total %d\n\n", snap.SessionsStarted))

	labelled(&sb, "rizztempo_sessions_ended_total", "Practice timers ended by outcome", "counter", "outcome", snap.SessionsByResult)

	sb.WriteString("# HELP rizztempo_seconds_debited_total Practice seconds accepted by the backend\n")
	sb.WriteString("# TYPE rizztempo_seconds_debited_total counter\n")
	sb.WriteString(fmt.Sprintf("rizztempo_seconds_debited_total %g\n\n", snap.SecondsDebited))

	sb.WriteString("# HELP rizztempo_tokens_estimated_total Client-side token estimates (advisory)\n")
	sb.WriteString("# TYPE rizztempo_tokens_estimated_total counter\n")
	sb.WriteString(fmt.Sprintf("rizztempo_tokens_estimated_total %g\n\n", snap.TokensEstimated))

	labelled(&sb, "rizztempo_voice_connects_total", "Voice session attempts by result", "counter", "result", snap.VoiceConnects)

	return sb.String()
}

func gauge(sb *strings.Builder, name, help, value string) {
	sb.WriteString(fmt.Sprintf("# HELP %s %s\n", name, help))
	sb.WriteString(fmt.Sprintf("# TYPE %s gauge\n", name))
	sb.WriteString(fmt.Sprintf("%s %s\n\n", name, value))
}

func labelled(sb *strings.Builder, name, help, kind, label string, values map[string]int64) {
	sb.WriteString(fmt.Sprintf("# HELP %s %s\n", name, help))
	sb.WriteString(fmt.Sprintf("# TYPE %s %s\n", name, kind))
	for _, key := range sortedKeys(values) {
		sb.WriteString(fmt.Sprintf("%s{%s=\"%s\"} %d\n", name, label, escapeLabel(key), values[key]))
	}
	sb.WriteString("\n")
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return strings.ReplaceAll(v, "\n", `\n`)
}

// sortedKeys returns map keys in sorted order for consistent output.
func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
