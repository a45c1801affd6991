package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Polling counters
	PollsStarted atomic.Uint64
	PollsApplied atomic.Uint64
	PollFailures atomic.Uint64
	PollsSkipped atomic.Uint64 // tick fired while a request was in flight
	StaleResults atomic.Uint64 // result arrived for a superseded session

	// Session lifecycle
	SessionsStarted    atomic.Uint64
	ActivationFailures atomic.Uint64

	// Latency tracking
	PollLatencyMs atomic.Uint64 // last status fetch round trip

	// Current state
	ThreatLevel      atomic.Uint64 // 0 = safe, 1 = warning, 2 = danger
	ThreatChanges    atomic.Uint64
	BackendConnected atomic.Uint64
	SessionActive    atomic.Uint64
	CrowdCount       atomic.Uint64

	// Alarm
	AlarmPlaying       atomic.Uint64
	AlarmStartFailures atomic.Uint64

	// Notifications
	NotificationsSent      atomic.Uint64
	NotificationsFailed    atomic.Uint64
	NotificationsThrottled atomic.Uint64
	MQTTPublished          atomic.Uint64
	MQTTErrors             atomic.Uint64

	// State surface clients (SSE + WebSocket)
	ActiveClients atomic.Uint64
	TotalClients  atomic.Uint64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

type gauge struct {
	name string
	help string
	v    *atomic.Uint64
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []gauge{
		{"cctv_polls_started_total", "Status requests issued", &m.PollsStarted},
		{"cctv_polls_applied_total", "Status replies applied to the session", &m.PollsApplied},
		{"cctv_poll_failures_total", "Status requests that failed or timed out", &m.PollFailures},
		{"cctv_polls_skipped_total", "Ticks skipped because a request was still in flight", &m.PollsSkipped},
		{"cctv_stale_results_total", "Replies discarded because their session was superseded", &m.StaleResults},
		{"cctv_sessions_started_total", "Successful session activations", &m.SessionsStarted},
		{"cctv_activation_failures_total", "Failed session activations", &m.ActivationFailures},
		{"cctv_poll_latency_ms", "Last status fetch latency in milliseconds", &m.PollLatencyMs},
		{"cctv_threat_level", "Current threat level (0=safe, 1=warning, 2=danger)", &m.ThreatLevel},
		{"cctv_threat_changes_total", "Threat level transitions", &m.ThreatChanges},
		{"cctv_backend_connected", "Detection service reachable (0/1)", &m.BackendConnected},
		{"cctv_session_active", "Monitoring session active (0/1)", &m.SessionActive},
		{"cctv_crowd_count", "Crowd count from the last applied snapshot", &m.CrowdCount},
		{"cctv_alarm_playing", "Alarm playback active (0/1)", &m.AlarmPlaying},
		{"cctv_alarm_start_failures_total", "Alarm playback start rejections", &m.AlarmStartFailures},
		{"cctv_notifications_sent_total", "Push notifications delivered", &m.NotificationsSent},
		{"cctv_notifications_failed_total", "Push notifications that failed", &m.NotificationsFailed},
		{"cctv_notifications_throttled_total", "Push notifications suppressed by cooldown", &m.NotificationsThrottled},
		{"cctv_mqtt_published_total", "MQTT state messages published", &m.MQTTPublished},
		{"cctv_mqtt_errors_total", "MQTT publish errors", &m.MQTTErrors},
		{"cctv_active_clients", "Connected state stream clients", &m.ActiveClients},
		{"cctv_total_clients", "State stream clients connected since start", &m.TotalClients},
	}

	for _, g := range gauges {
		v := g.v
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(v.Load()) },
		))
	}
}

// UpdatePollLatency records the round trip of the last status fetch
func (m *Metrics) UpdatePollLatency(d time.Duration) {
	m.PollLatencyMs.Store(uint64(d.Milliseconds()))
}

// SetBool stores 1 or 0.
func SetBool(v *atomic.Uint64, b bool) {
	if b {
		v.Store(1)
		return
	}
	v.Store(0)
}

// ClientConnected tracks a new state stream client
func (m *Metrics) ClientConnected() {
	m.ActiveClients.Add(1)
	m.TotalClients.Add(1)
}

// ClientDisconnected tracks a state stream client leaving
func (m *Metrics) ClientDisconnected() {
	m.ActiveClients.Add(^uint64(0))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
