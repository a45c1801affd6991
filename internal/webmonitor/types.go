package webmonitor

import (
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/session"
)

// MuteRequest is the body of POST /api/alarm/mute.
type MuteRequest struct {
	Muted *bool `json:"muted"`
}

// VolumeRequest is the body of POST /api/alarm/volume.
type VolumeRequest struct {
	Volume *float64 `json:"volume"`
}

// ControlResponse is returned by every successful control endpoint.
type ControlResponse struct {
	Status string        `json:"status"`
	State  session.State `json:"state"`
}

// ErrorResponse is returned by every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthReport is the payload for /healthz.
type HealthReport struct {
	Status           string  `json:"status"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	Phase            string  `json:"phase"`
	BackendConnected bool    `json:"backend_connected"`
	ThreatLevel      string  `json:"threat_level"`
	StreamClients    int     `json:"stream_clients"`
	PollCount        uint64  `json:"poll_count"`
}
