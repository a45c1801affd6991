package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.PollsSkipped.Add(3)
	m.ThreatLevel.Store(2)
	SetBool(&m.BackendConnected, true)
	m.UpdatePollLatency(42 * time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "cctv_polls_skipped_total 3")
	assert.Contains(t, text, "cctv_threat_level 2")
	assert.Contains(t, text, "cctv_backend_connected 1")
	assert.Contains(t, text, "cctv_poll_latency_ms 42")
}

func TestClientTracking(t *testing.T) {
	m := New()
	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()

	assert.Equal(t, uint64(1), m.ActiveClients.Load())
	assert.Equal(t, uint64(2), m.TotalClients.Load())
}

func TestIndependentRegistries(t *testing.T) {
	// Each instance owns its registry, so tests can build many.
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
