// Package detection talks to the remote detection service.
package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/status"
)

const (
	DefaultActivatePath = "/api/start_detection"
	DefaultStatusPath   = "/get_status"

	maxBodyBytes = 64 << 10
)

var ErrUnexpectedStatus = errors.New("detection: unexpected http status")

// Config locates the detection service.
type Config struct {
	BaseURL      string
	ActivatePath string
	StatusPath   string
}

// Client calls the detection service. Deadlines come from the caller's context.
type Client struct {
	http        *http.Client
	activateURL string
	statusURL   string
}

// NewClient returns a Client. A nil httpClient uses a new http.Client.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("detection: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("detection: base url %q must be http or https", cfg.BaseURL)
	}
	if cfg.ActivatePath == "" {
		cfg.ActivatePath = DefaultActivatePath
	}
	if cfg.StatusPath == "" {
		cfg.StatusPath = DefaultStatusPath
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		http:        httpClient,
		activateURL: base.JoinPath(cfg.ActivatePath).String(),
		statusURL:   base.JoinPath(cfg.StatusPath).String(),
	}, nil
}

type activateReply struct {
	Status string `json:"status"`
}

// Activate asks the service to start detecting.
func (c *Client) Activate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.activateURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil
	}

	var body activateReply
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body)
	if body.Status != "" {
		return fmt.Errorf("activate: %w %d: %s", ErrUnexpectedStatus, resp.StatusCode, body.Status)
	}
	return fmt.Errorf("activate: %w %d", ErrUnexpectedStatus, resp.StatusCode)
}

// FetchStatus performs one status query.
func (c *Client) FetchStatus(ctx context.Context) (status.Reply, error) {
	var reply status.Reply

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL, nil)
	if err != nil {
		return reply, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return reply, fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return reply, fmt.Errorf("fetch status: %w %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&reply); err != nil {
		return reply, fmt.Errorf("fetch status: decode: %w", err)
	}
	return reply, nil
}
