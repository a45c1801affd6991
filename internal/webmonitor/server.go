package webmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/logger"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/metrics"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/session"
)

// Session is the part of the session manager the server drives.
type Session interface {
	Source
	Current() session.State
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetMuted(ctx context.Context, muted bool) error
	SetVolume(ctx context.Context, v float64) error
}

// Server serves the monitor dashboard, the state surface and the control
// endpoints.
type Server struct {
	cfg         Config
	session     Session
	metrics     *metrics.Metrics
	monitor     *Monitor
	broadcaster *StateBroadcaster
	limiter     *rate.Limiter
}

// NewServer returns a configured monitor server.
func NewServer(cfg Config, sess Session, m *metrics.Metrics) *Server {
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = DefaultConfig().Keepalive
	}
	if m == nil {
		m = metrics.New()
	}

	limit := rate.Inf
	if cfg.ControlRate > 0 {
		limit = rate.Limit(cfg.ControlRate)
	}
	burst := cfg.ControlBurst
	if burst <= 0 {
		burst = 1
	}

	return &Server{
		cfg:         cfg,
		session:     sess,
		metrics:     m,
		monitor:     NewMonitor(),
		broadcaster: NewStateBroadcaster(sess),
		limiter:     rate.NewLimiter(limit, burst),
	}
}

func (s *Server) String() string { return "web-monitor" }

// Serve runs the state broadcaster and listens on cfg.Addr until ctx is
// done, then shuts the listener down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("webmonitor: listen %s: %w", s.cfg.Addr, err)
	}
	return s.serveListener(ctx, ln)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		return s.broadcaster.Serve(gctx)
	})
	g.Go(func() error {
		logger.Info("WebMonitor", "Listening on %s", ln.Addr())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /assets/", http.StripPrefix("/assets/", newAssetHandler(s.cfg.AssetsDir)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/state/stream", s.handleStateStream)
	mux.HandleFunc("GET /api/state/ws", s.handleStateWebSocket)
	mux.HandleFunc("GET /api/threat/badge.png", s.handleBadge)

	mux.HandleFunc("POST /api/session/start", s.limited(s.handleSessionStart))
	mux.HandleFunc("POST /api/session/stop", s.limited(s.handleSessionStop))
	mux.HandleFunc("POST /api/alarm/mute", s.limited(s.handleAlarmMute))
	mux.HandleFunc("POST /api/alarm/volume", s.limited(s.handleAlarmVolume))

	return mux
}

// limited rejects control requests beyond the configured rate.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "too many control requests")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.monitor.Health(s.session.Current(), s.broadcaster.ClientCount()))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.session.Current())
}

func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)
	s.metrics.ClientConnected()
	defer s.metrics.ClientDisconnected()

	streamStateEvents(w, r, eventCh, wantsProtobuf(r), s.cfg.Keepalive)
}

func (s *Server) handleStateWebSocket(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)
	s.metrics.ClientConnected()
	defer s.metrics.ClientDisconnected()

	streamStateWebSocket(w, r, eventCh, s.cfg.Keepalive)
}

func (s *Server) handleBadge(w http.ResponseWriter, r *http.Request) {
	data, err := renderBadge(s.session.Current())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render badge")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	err := s.session.Start(r.Context())
	switch {
	case err == nil:
		s.writeControl(w, "active")
	case errors.Is(err, session.ErrBootInProgress), errors.Is(err, session.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrActivationFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Stop(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeControl(w, "idle")
}

func (s *Server) handleAlarmMute(w http.ResponseWriter, r *http.Request) {
	var req MuteRequest
	if err := decodeBody(r, &req); err != nil || req.Muted == nil {
		writeError(w, http.StatusBadRequest, `body must be {"muted": bool}`)
		return
	}
	if err := s.session.SetMuted(r.Context(), *req.Muted); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeControl(w, "ok")
}

func (s *Server) handleAlarmVolume(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if err := decodeBody(r, &req); err != nil || req.Volume == nil {
		writeError(w, http.StatusBadRequest, `body must be {"volume": number}`)
		return
	}
	v := *req.Volume
	if math.IsNaN(v) || v < 0 || v > 1 {
		writeError(w, http.StatusBadRequest, "volume must be between 0 and 1")
		return
	}
	if err := s.session.SetVolume(r.Context(), v); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeControl(w, "ok")
}

func (s *Server) writeControl(w http.ResponseWriter, status string) {
	writeJSON(w, ControlResponse{Status: status, State: s.session.Current()})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 4096))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONWithStatus(w, ErrorResponse{Error: msg}, status)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}
