package webmonitor

import (
	"time"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/session"
)

// Monitor derives the health report served on /healthz.
type Monitor struct {
	startTime time.Time
	now       func() time.Time
}

// NewMonitor creates a Monitor whose uptime starts now.
func NewMonitor() *Monitor {
	return &Monitor{startTime: time.Now(), now: time.Now}
}

// Health reports "degraded" while a session is active but the detection
// service cannot be reached, "ok" otherwise.
func (m *Monitor) Health(s session.State, clients int) HealthReport {
	status := "ok"
	if s.Phase == session.PhaseActive && !s.BackendConnected {
		status = "degraded"
	}
	return HealthReport{
		Status:           status,
		UptimeSeconds:    m.now().Sub(m.startTime).Seconds(),
		Phase:            s.Phase.String(),
		BackendConnected: s.BackendConnected,
		ThreatLevel:      s.ThreatLevel.String(),
		StreamClients:    clients,
		PollCount:        s.PollCount,
	}
}
