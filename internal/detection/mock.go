package detection

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/logger"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/status"
)

// Frame is one scripted status reply.
type Frame struct {
	CrowdCount     int    `json:"crowd_count" yaml:"crowd_count"`
	WeaponStatus   string `json:"weapon_status" yaml:"weapon_status"`
	ViolenceStatus string `json:"violence_status" yaml:"violence_status"`
}

// MockService is an in-process stand-in for the detection service. Each
// status query after activation returns the next scripted frame; the
// last frame repeats once the script runs out unless Loop is set.
type MockService struct {
	mu             sync.Mutex
	script         []Frame
	next           int
	loop           bool
	active         bool
	failActivation bool
	failStatus     int // number of upcoming status queries to fail
	activations    int
	queries        int
}

// NewMockService returns a MockService playing script.
func NewMockService(script []Frame, loop bool) *MockService {
	return &MockService{script: script, loop: loop}
}

// SetFailActivation makes activation return 500.
func (m *MockService) SetFailActivation(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failActivation = fail
}

// FailNextStatus makes the next n status queries return 503.
func (m *MockService) FailNextStatus(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStatus = n
}

// Counts returns the number of activations and status queries served.
func (m *MockService) Counts() (activations, queries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activations, m.queries
}

// Handler returns the detection service routes.
func (m *MockService) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+DefaultActivatePath, m.handleActivate)
	mux.HandleFunc("GET "+DefaultStatusPath, m.handleStatus)
	return mux
}

func (m *MockService) handleActivate(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.activations++
	fail := m.failActivation
	if !fail {
		m.active = true
	}
	m.mu.Unlock()

	if fail {
		logger.Warn("MockDetector", "Activation refused")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "Error starting detection"})
		return
	}
	logger.Info("MockDetector", "Detection started")
	writeJSON(w, http.StatusOK, map[string]string{"status": "Detection started"})
}

func (m *MockService) handleStatus(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.queries++
	if m.failStatus > 0 {
		m.failStatus--
		m.mu.Unlock()
		http.Error(w, "detector unavailable", http.StatusServiceUnavailable)
		return
	}
	frame := Frame{WeaponStatus: status.SafeText, ViolenceStatus: status.SafeText}
	if m.active && len(m.script) > 0 {
		frame = m.script[m.next]
		switch {
		case m.next+1 < len(m.script):
			m.next++
		case m.loop:
			m.next = 0
		}
	}
	active := m.active
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, status.Reply{
		CrowdCount:     status.FlexString(strconv.Itoa(frame.CrowdCount)),
		WeaponStatus:   orSafe(frame.WeaponStatus),
		ViolenceStatus: orSafe(frame.ViolenceStatus),
		SystemActive:   active,
	})
}

func orSafe(s string) string {
	if s == "" {
		return status.SafeText
	}
	return s
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("MockDetector", "Failed to encode JSON: %v", err)
	}
}
