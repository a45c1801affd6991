package webmonitor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/alarm"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/session"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/threat"
)

type fakeSession struct {
	ch chan session.State

	mu       sync.Mutex
	state    session.State
	startErr error
	starts   int
	stops    int
	muted    []bool
	volumes  []float64
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		ch: make(chan session.State),
		state: session.State{
			Phase:          session.PhaseIdle,
			WeaponStatus:   "Safe",
			ViolenceStatus: "Safe",
			Alarm:          alarm.State{Volume: 0.7},
		},
	}
}

func (f *fakeSession) Subscribe() (int, <-chan session.State) { return 1, f.ch }
func (f *fakeSession) Unsubscribe(int)                        {}

func (f *fakeSession) Current() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.state.Phase = session.PhaseActive
	f.state.Active = true
	return nil
}

func (f *fakeSession) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state.Phase = session.PhaseIdle
	f.state.Active = false
	return nil
}

func (f *fakeSession) SetMuted(_ context.Context, muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = append(f.muted, muted)
	f.state.Alarm.Muted = muted
	return nil
}

func (f *fakeSession) SetVolume(_ context.Context, v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, v)
	f.state.Alarm.Volume = v
	return nil
}

func dangerState() session.State {
	return session.State{
		SessionID:        "s-1",
		Phase:            session.PhaseActive,
		Active:           true,
		BackendConnected: true,
		BootCompleted:    true,
		ThreatLevel:      threat.Danger,
		WeaponActive:     true,
		CrowdCount:       40,
		CrowdAlert:       true,
		WeaponStatus:     "Knife (0.82)",
		WeaponConfidence: 0.82,
		ViolenceStatus:   "Safe",
		Alarm:            alarm.State{Volume: 0.7, Playing: true},
		PollCount:        3,
	}
}

type harness struct {
	fake *fakeSession
	srv  *Server
	ts   *httptest.Server
}

// newHarness starts the broadcaster and an httptest server. Cleanup stops
// the broadcaster first so open streams end before the server closes.
func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	fake := newFakeSession()
	srv := NewServer(cfg, fake, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.broadcaster.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &harness{fake: fake, srv: srv, ts: ts}
}

func (h *harness) post(t *testing.T, path, body string) (int, map[string]any) {
	t.Helper()
	resp, err := h.ts.Client().Post(h.ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func (h *harness) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := h.ts.Client().Get(h.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

// readSSEData returns the payload of the next data event, skipping
// keepalive comments.
func readSSEData(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			return strings.TrimSpace(data)
		}
	}
}

func (h *harness) openStream(t *testing.T, accept string) (*http.Response, *bufio.Reader) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.ts.URL+"/api/state/stream", nil)
	require.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := h.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp, bufio.NewReader(resp.Body)
}

func TestStateEndpoint(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	resp, body := h.get(t, "/api/state")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "idle", payload["phase"])
	assert.Equal(t, "safe", payload["threatLevel"])
	assert.Equal(t, false, payload["backendConnected"])
	assert.Equal(t, "Safe", payload["weaponStatus"])
}

func TestSessionControls(t *testing.T) {
	h := newHarness(t, Config{ControlRate: 0})

	status, payload := h.post(t, "/api/session/start", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "active", payload["status"])
	assert.Equal(t, "active", payload["state"].(map[string]any)["phase"])

	h.fake.mu.Lock()
	h.fake.startErr = session.ErrBootInProgress
	h.fake.mu.Unlock()
	status, _ = h.post(t, "/api/session/start", "")
	assert.Equal(t, http.StatusConflict, status)

	h.fake.mu.Lock()
	h.fake.startErr = fmt.Errorf("%w: %w", session.ErrActivationFailed, errors.New("connection refused"))
	h.fake.mu.Unlock()
	status, payload = h.post(t, "/api/session/start", "")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, payload["error"], "connection refused")

	status, payload = h.post(t, "/api/session/stop", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "idle", payload["state"].(map[string]any)["phase"])

	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()
	assert.Equal(t, 3, h.fake.starts)
	assert.Equal(t, 1, h.fake.stops)
}

func TestAlarmControls(t *testing.T) {
	h := newHarness(t, Config{})

	status, payload := h.post(t, "/api/alarm/mute", `{"muted": true}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, payload["state"].(map[string]any)["alarm"].(map[string]any)["muted"])

	for _, body := range []string{``, `{}`, `{"muted": "yes"}`, `{"mute": true}`} {
		status, _ = h.post(t, "/api/alarm/mute", body)
		assert.Equal(t, http.StatusBadRequest, status, "body %q", body)
	}

	status, _ = h.post(t, "/api/alarm/volume", `{"volume": 0.25}`)
	assert.Equal(t, http.StatusOK, status)
	for _, body := range []string{`{"volume": 1.5}`, `{"volume": -0.1}`, `{}`, `{"volume": "loud"}`} {
		status, _ = h.post(t, "/api/alarm/volume", body)
		assert.Equal(t, http.StatusBadRequest, status, "body %q", body)
	}

	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()
	assert.Equal(t, []bool{true}, h.fake.muted)
	assert.Equal(t, []float64{0.25}, h.fake.volumes)
}

func TestControlRateLimit(t *testing.T) {
	h := newHarness(t, Config{ControlRate: 0.001, ControlBurst: 1})

	status, _ := h.post(t, "/api/session/stop", "")
	assert.Equal(t, http.StatusOK, status)
	status, payload := h.post(t, "/api/session/stop", "")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "too many control requests", payload["error"])

	resp, _ := h.get(t, "/api/state")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "reads are not limited")
}

func TestControlMethodNotAllowed(t *testing.T) {
	h := newHarness(t, Config{})
	resp, _ := h.get(t, "/api/session/start")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStateStreamJSON(t *testing.T) {
	h := newHarness(t, Config{Keepalive: time.Hour})
	h.fake.ch <- dangerState()

	resp, r := h.openStream(t, "")
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, formatJSON, resp.Header.Get("X-Content-Format"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(readSSEData(t, r)), &payload))
	assert.Equal(t, "danger", payload["threatLevel"])
	assert.Equal(t, "Knife (0.82)", payload["weaponStatus"])

	next := dangerState()
	next.ThreatLevel = threat.Safe
	h.fake.ch <- next
	require.NoError(t, json.Unmarshal([]byte(readSSEData(t, r)), &payload))
	assert.Equal(t, "safe", payload["threatLevel"])
}

func TestStateStreamProtobuf(t *testing.T) {
	h := newHarness(t, Config{Keepalive: time.Hour})
	h.fake.ch <- dangerState()

	resp, r := h.openStream(t, "application/x-protobuf")
	assert.Equal(t, formatProtobuf, resp.Header.Get("X-Content-Format"))

	raw, err := base64.StdEncoding.DecodeString(readSSEData(t, r))
	require.NoError(t, err)
	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(raw, &st))
	assert.Equal(t, "danger", st.Fields["threatLevel"].GetStringValue())
	assert.Equal(t, float64(40), st.Fields["crowdCount"].GetNumberValue())
	assert.True(t, st.Fields["alarm"].GetStructValue().Fields["playing"].GetBoolValue())
}

func TestStateStreamKeepalive(t *testing.T) {
	h := newHarness(t, Config{Keepalive: 20 * time.Millisecond})
	_, r := h.openStream(t, "")

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": keepalive\n", line)
}

func TestStateStreamEndsWhenBroadcasterStops(t *testing.T) {
	fake := newFakeSession()
	srv := NewServer(Config{Keepalive: time.Hour}, fake, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.broadcaster.Serve(ctx)
	}()
	fake.ch <- dangerState()

	resp, err := ts.Client().Get(ts.URL + "/api/state/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	r := bufio.NewReader(resp.Body)
	readSSEData(t, r)

	cancel()
	<-done
	_, err = io.ReadAll(r)
	assert.NoError(t, err, "stream closes cleanly")
}

func TestStateWebSocket(t *testing.T) {
	h := newHarness(t, Config{Keepalive: time.Hour})
	h.fake.ch <- dangerState()

	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/api/state/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var payload map[string]any
	require.NoError(t, conn.ReadJSON(&payload))
	assert.Equal(t, "danger", payload["threatLevel"])
	assert.Equal(t, "s-1", payload["sessionId"])

	stopped := dangerState()
	stopped.Phase = session.PhaseIdle
	h.fake.ch <- stopped
	require.NoError(t, conn.ReadJSON(&payload))
	assert.Equal(t, "idle", payload["phase"])

	assert.Eventually(t, func() bool { return h.srv.metrics.ActiveClients.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestBadge(t *testing.T) {
	h := newHarness(t, Config{})

	resp, body := h.get(t, "/api/threat/badge.png")
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, badgeWidth, img.Bounds().Dx())
	assert.Equal(t, badgeHeight, img.Bounds().Dy())
	assert.Equal(t, colorIdle, color.RGBAModel.Convert(img.At(1, 1)))

	h.fake.mu.Lock()
	h.fake.state = dangerState()
	h.fake.mu.Unlock()
	_, body = h.get(t, "/api/threat/badge.png")
	img, err = png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, colorDanger, color.RGBAModel.Convert(img.At(1, 1)))
}

func TestBadgeLines(t *testing.T) {
	s := dangerState()
	title, detail := badgeLines(s)
	assert.Equal(t, "DANGER", title)
	assert.Equal(t, "crowd 40  poll #3", detail)

	s.BackendConnected = false
	s.ThreatLevel = threat.Warning
	title, _ = badgeLines(s)
	assert.Equal(t, "WARNING (OFFLINE)", title)
	assert.Equal(t, colorWarning, badgeColor(s))

	title, _ = badgeLines(session.State{Phase: session.PhaseBooting})
	assert.Equal(t, "SYSTEM BOOTING", title)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, Config{})

	_, body := h.get(t, "/healthz")
	var report HealthReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "idle", report.Phase)

	h.fake.mu.Lock()
	h.fake.state = dangerState()
	h.fake.state.BackendConnected = false
	h.fake.mu.Unlock()
	_, body = h.get(t, "/healthz")
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "danger", report.ThreatLevel)
	assert.Equal(t, uint64(3), report.PollCount)
}

func TestIndexAndAssets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeFile(dir+"/alarm.wav", "RIFF"))
	h := newHarness(t, Config{AssetsDir: dir})

	resp, body := h.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "CCTV Threat Monitor")

	resp, body = h.get(t, "/assets/alarm.wav")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "RIFF", string(body))

	resp, _ = h.get(t, "/assets/missing.css")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, Config{})
	h.srv.metrics.ThreatLevel.Store(2)

	resp, body := h.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "cctv_threat_level 2")
}

func TestServeListener(t *testing.T) {
	fake := newFakeSession()
	srv := NewServer(Config{}, fake, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.serveListener(ctx, ln) }()

	client := &http.Client{Timeout: 5 * time.Second}
	defer client.CloseIdleConnections()
	resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeListenError(t *testing.T) {
	srv := NewServer(Config{Addr: "127.0.0.1:-1"}, newFakeSession(), nil)
	assert.Error(t, srv.Serve(context.Background()))
}
