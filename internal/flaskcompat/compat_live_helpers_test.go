// Package flaskcompat checks a running detection service and a running
// monitor against the HTTP contracts the monitor depends on. Every test
// skips unless its server is reachable.
package flaskcompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

const (
	defaultDetectionURL   = "http://localhost:5000"
	defaultMonitorURL     = "http://localhost:8090"
	defaultRequestTimeout = 2 * time.Second
)

type liveClient struct {
	baseURL string
	client  *http.Client
}

func newLiveClient(t *testing.T, envVar, fallback, probePath string) *liveClient {
	t.Helper()
	baseURL := strings.TrimRight(os.Getenv(envVar), "/")
	if baseURL == "" {
		baseURL = fallback
	}
	client := &http.Client{Timeout: defaultRequestTimeout}

	if !isReachable(client, baseURL+probePath) {
		t.Skipf("live server not reachable at %s (set %s to run)", baseURL, envVar)
	}

	return &liveClient{
		baseURL: baseURL,
		client:  client,
	}
}

// newDetectionClient targets the Flask detection service.
func newDetectionClient(t *testing.T) *liveClient {
	return newLiveClient(t, "CCTV_DETECTION_URL", defaultDetectionURL, "/get_status")
}

// newMonitorClient targets cctv-monitor.
func newMonitorClient(t *testing.T) *liveClient {
	return newLiveClient(t, "CCTV_MONITOR_URL", defaultMonitorURL, "/healthz")
}

func isReachable(client *http.Client, url string) bool {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

func (c *liveClient) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return c.do(t, req)
}

func (c *liveClient) postJSON(t *testing.T, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(t, req)
}

func (c *liveClient) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, body
}

func readSSEEvent(url string, accept string, timeout time.Duration) (string, http.Header, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 256)
	for {
		n, readErr := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				idx := bytes.Index(buf, []byte("\n\n"))
				if idx < 0 {
					break
				}
				event := string(buf[:idx])
				buf = buf[idx+2:]
				if strings.HasPrefix(event, ":") {
					continue // keepalive comment
				}
				return event, resp.Header, nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return "", nil, fmt.Errorf("sse stream closed before event")
			}
			return "", nil, fmt.Errorf("read sse: %w", readErr)
		}
		select {
		case <-ctx.Done():
			return "", nil, fmt.Errorf("timeout waiting for sse event")
		default:
		}
	}
}

func sseData(t *testing.T, event string) string {
	t.Helper()
	for _, line := range strings.Split(event, "\n") {
		if strings.HasPrefix(line, "data:") {
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				t.Fatalf("empty sse data line")
			}
			return payload
		}
	}
	t.Fatalf("no data line in sse event: %q", event)
	return ""
}

func decodeJSONMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

func requireString(t *testing.T, value any, field string) string {
	t.Helper()
	str, ok := value.(string)
	if !ok {
		t.Fatalf("expected %s to be string, got %T", field, value)
	}
	return str
}

func requireNumber(t *testing.T, value any, field string) float64 {
	t.Helper()
	num, ok := value.(float64)
	if !ok {
		t.Fatalf("expected %s to be number, got %T", field, value)
	}
	return num
}

func requireBool(t *testing.T, value any, field string) bool {
	t.Helper()
	b, ok := value.(bool)
	if !ok {
		t.Fatalf("expected %s to be bool, got %T", field, value)
	}
	return b
}

func requireMap(t *testing.T, value any, field string) map[string]any {
	t.Helper()
	m, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("expected %s to be object, got %T", field, value)
	}
	return m
}

// assertStatusReply checks a /get_status body. crowd_count may be a
// string or a number.
func assertStatusReply(t *testing.T, payload map[string]any) {
	t.Helper()
	switch payload["crowd_count"].(type) {
	case string, float64:
	default:
		t.Fatalf("expected crowd_count to be string or number, got %T", payload["crowd_count"])
	}
	requireString(t, payload["weapon_status"], "weapon_status")
	requireString(t, payload["violence_status"], "violence_status")
	requireBool(t, payload["system_active"], "system_active")
}

// assertStatePayload checks a monitor state body.
func assertStatePayload(t *testing.T, payload map[string]any) {
	t.Helper()
	phase := requireString(t, payload["phase"], "phase")
	switch phase {
	case "idle", "booting", "active":
	default:
		t.Fatalf("unexpected phase %q", phase)
	}
	level := requireString(t, payload["threatLevel"], "threatLevel")
	switch level {
	case "safe", "warning", "danger":
	default:
		t.Fatalf("unexpected threatLevel %q", level)
	}
	active := requireBool(t, payload["active"], "active")
	if active != (phase == "active") {
		t.Fatalf("active=%v disagrees with phase %q", active, phase)
	}
	requireBool(t, payload["backendConnected"], "backendConnected")
	requireBool(t, payload["bootCompleted"], "bootCompleted")
	requireBool(t, payload["weaponActive"], "weaponActive")
	requireBool(t, payload["violenceActive"], "violenceActive")
	requireBool(t, payload["crowdAlert"], "crowdAlert")
	requireNumber(t, payload["crowdCount"], "crowdCount")
	requireString(t, payload["weaponStatus"], "weaponStatus")
	requireString(t, payload["violenceStatus"], "violenceStatus")
	requireNumber(t, payload["pollCount"], "pollCount")
	requireString(t, payload["updatedAt"], "updatedAt")

	alarm := requireMap(t, payload["alarm"], "alarm")
	requireBool(t, alarm["muted"], "alarm.muted")
	requireBool(t, alarm["playing"], "alarm.playing")
	vol := requireNumber(t, alarm["volume"], "alarm.volume")
	if vol < 0 || vol > 1 {
		t.Fatalf("alarm.volume %v out of range", vol)
	}
}
