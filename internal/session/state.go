package session

import (
	"fmt"
	"time"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/alarm"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/status"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/threat"
)

// Phase is the session lifecycle stage.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseBooting
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseBooting:
		return "booting"
	case PhaseActive:
		return "active"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is an immutable view of the session published after every
// transition. Observers must not modify it.
type State struct {
	SessionID        string       `json:"sessionId,omitempty"`
	Phase            Phase        `json:"phase"`
	Active           bool         `json:"active"`
	BackendConnected bool         `json:"backendConnected"`
	BootCompleted    bool         `json:"bootCompleted"`
	ThreatLevel      threat.Level `json:"threatLevel"`
	WeaponActive     bool         `json:"weaponActive"`
	ViolenceActive   bool         `json:"violenceActive"`
	CrowdAlert       bool         `json:"crowdAlert"`
	CrowdCount       int          `json:"crowdCount"`
	WeaponStatus     string       `json:"weaponStatus"`
	WeaponConfidence float64      `json:"weaponConfidence"`
	ViolenceStatus   string       `json:"violenceStatus"`
	Alarm            alarm.State  `json:"alarm"`
	PollCount        uint64       `json:"pollCount"`
	LastError        string       `json:"lastError,omitempty"`
	LastSnapshotAt   time.Time    `json:"lastSnapshotAt,omitzero"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

func idleState(a alarm.State, now time.Time) State {
	empty := status.Empty()
	return State{
		Phase:          PhaseIdle,
		ThreatLevel:    threat.Safe,
		WeaponStatus:   empty.WeaponText,
		ViolenceStatus: empty.ViolenceText,
		Alarm:          a,
		UpdatedAt:      now,
	}
}
