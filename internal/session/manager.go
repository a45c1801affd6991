// Package session owns the monitoring session: activation, the polling
// loop, signal fusion and alarm control. All mutations run on a single
// goroutine (Serve); everything else talks to it through messages and
// reads the published State.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/alarm"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/logger"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/metrics"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/status"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/threat"
)

var (
	ErrActivationFailed = errors.New("session: activation failed")
	ErrBootInProgress   = errors.New("session: activation already in progress")
	ErrSuperseded       = errors.New("session: superseded by a later start or stop")
	ErrAlreadyServing   = errors.New("session: manager already serving")
)

// Config controls session timing and thresholds.
type Config struct {
	PollInterval    time.Duration
	RequestTimeout  time.Duration // activation and fetch deadline, 0 means PollInterval
	GraceWindow     time.Duration
	WeaponThreshold float64
	CrowdThreshold  int
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		PollInterval:    time.Second,
		GraceWindow:     threat.DefaultGraceWindow,
		WeaponThreshold: threat.DefaultWeaponThreshold,
		CrowdThreshold:  threat.DefaultCrowdThreshold,
	}
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	return c.PollInterval
}

// Detector is the detection service as the session uses it.
type Detector interface {
	Activate(ctx context.Context) error
	FetchStatus(ctx context.Context) (status.Reply, error)
}

type pollResult struct {
	generation uint64
	reply      status.Reply
	err        error
	latency    time.Duration
}

type activation struct {
	generation uint64
	err        error
	reply      chan<- error
}

// Manager is the session actor.
type Manager struct {
	cfg        Config
	detector   Detector
	clock      clockwork.Clock
	alarm      *alarm.Controller
	metrics    *metrics.Metrics
	debouncer  *threat.Debouncer
	classifier threat.Classifier

	cmds        chan func()
	results     chan pollResult
	activations chan activation
	serving     atomic.Bool

	// Owned by the Serve goroutine.
	loopCtx       context.Context
	phase         Phase
	generation    uint64
	sessionID     string
	sessionCancel context.CancelFunc
	sessionCtx    context.Context
	ticker        clockwork.Ticker
	inFlight      bool
	connected     bool
	booted        bool
	level         threat.Level
	weaponActive  bool
	snapshot      status.Snapshot
	pollCount     uint64
	lastErr       string

	current   atomic.Pointer[State]
	observers *observers
}

// NewManager creates a Manager. Serve must be running for any control
// call to complete. Nil clock, controller or metrics select defaults.
func NewManager(cfg Config, detector Detector, ctrl *alarm.Controller, clock clockwork.Clock, m *metrics.Metrics) *Manager {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if m == nil {
		m = metrics.New()
	}
	if ctrl == nil {
		ctrl = alarm.NewController(alarm.NopDevice{}, m, alarm.DefaultVolume, false)
	}

	mgr := &Manager{
		cfg:         cfg,
		detector:    detector,
		clock:       clock,
		alarm:       ctrl,
		metrics:     m,
		debouncer:   threat.NewDebouncer(cfg.WeaponThreshold, cfg.GraceWindow),
		classifier:  threat.Classifier{CrowdThreshold: cfg.CrowdThreshold},
		cmds:        make(chan func()),
		results:     make(chan pollResult, 4),
		activations: make(chan activation),
		snapshot:    status.Empty(),
		observers:   newObservers(),
	}
	initial := idleState(ctrl.State(), clock.Now())
	mgr.current.Store(&initial)
	return mgr
}

// Serve runs the actor until ctx is done. It implements suture.Service.
func (m *Manager) Serve(ctx context.Context) error {
	if !m.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	defer m.serving.Store(false)

	m.loopCtx = ctx
	defer m.shutdown()

	logger.Info("Session", "Manager running (poll=%v, grace=%v, timeout=%v)",
		m.cfg.PollInterval, m.debouncer.Window(), m.cfg.requestTimeout())

	for {
		var tick <-chan time.Time
		if m.ticker != nil {
			tick = m.ticker.Chan()
		}

		select {
		case <-ctx.Done():
			return nil
		case fn := <-m.cmds:
			fn()
		case <-tick:
			m.poll()
		case res := <-m.results:
			m.handlePoll(res)
		case act := <-m.activations:
			m.handleActivation(act)
		}
	}
}

func (m *Manager) String() string { return "session-manager" }

// do runs fn on the actor and waits for it to finish.
func (m *Manager) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case m.cmds <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start activates the detection service and begins polling. It is a no-op
// while a session is active and fails with ErrBootInProgress while another
// activation is pending. An activation failure leaves the session idle and
// is returned wrapped in ErrActivationFailed.
func (m *Manager) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := m.do(ctx, func() { m.beginStart(reply) }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the session and resets every session field in one step. It is
// safe to call when idle.
func (m *Manager) Stop(ctx context.Context) error {
	return m.do(ctx, func() {
		was := m.phase
		m.resetSession()
		m.lastErr = ""
		m.publish()
		if was != PhaseIdle {
			logger.Info("Session", "Session stopped (was %s)", was)
		}
	})
}

// SetMuted changes the alarm mute preference.
func (m *Manager) SetMuted(ctx context.Context, muted bool) error {
	return m.do(ctx, func() {
		m.alarm.SetMuted(muted)
		m.publish()
	})
}

// SetVolume changes the alarm volume preference.
func (m *Manager) SetVolume(ctx context.Context, v float64) error {
	return m.do(ctx, func() {
		m.alarm.SetVolume(v)
		m.publish()
	})
}

// Current returns the latest published State.
func (m *Manager) Current() State {
	return *m.current.Load()
}

// Subscribe returns a channel that receives the current State and every
// later one, latest-wins.
func (m *Manager) Subscribe() (int, <-chan State) {
	return m.observers.subscribe(m.Current)
}

// Unsubscribe closes a subscription channel.
func (m *Manager) Unsubscribe(id int) {
	m.observers.unsubscribe(id)
}

// SubscriberCount returns the number of active subscriptions.
func (m *Manager) SubscriberCount() int {
	return m.observers.count()
}

func (m *Manager) beginStart(reply chan<- error) {
	switch m.phase {
	case PhaseActive:
		reply <- nil
		return
	case PhaseBooting:
		reply <- ErrBootInProgress
		return
	}

	m.generation++
	gen := m.generation
	m.phase = PhaseBooting
	m.sessionID = uuid.NewString()
	m.lastErr = ""
	m.sessionCtx, m.sessionCancel = context.WithCancel(m.loopCtx)
	m.publish()
	logger.Info("Session", "Activating detection service (session=%s)", m.sessionID)

	sessionCtx, loopCtx := m.sessionCtx, m.loopCtx
	timeout := m.cfg.requestTimeout()
	go func() {
		ctx, cancel := context.WithTimeout(sessionCtx, timeout)
		defer cancel()
		err := m.detector.Activate(ctx)
		select {
		case m.activations <- activation{generation: gen, err: err, reply: reply}:
		case <-loopCtx.Done():
			reply <- ErrSuperseded
		}
	}()
}

func (m *Manager) handleActivation(act activation) {
	if act.generation != m.generation || m.phase != PhaseBooting {
		act.reply <- ErrSuperseded
		return
	}

	if act.err != nil {
		m.sessionCancel()
		m.sessionCancel = nil
		m.phase = PhaseIdle
		m.sessionID = ""
		m.lastErr = act.err.Error()
		m.metrics.ActivationFailures.Add(1)
		logger.Error("Session", "Activation failed: %v", act.err)
		m.publish()
		act.reply <- fmt.Errorf("%w: %w", ErrActivationFailed, act.err)
		return
	}

	m.phase = PhaseActive
	m.connected = true
	m.booted = true
	m.debouncer.Reset()
	m.ticker = m.clock.NewTicker(m.cfg.PollInterval)
	m.metrics.SessionsStarted.Add(1)
	logger.Info("Session", "Session %s active", m.sessionID)

	m.poll()
	m.publish()
	act.reply <- nil
}

// poll issues one status request unless one is already in flight.
func (m *Manager) poll() {
	if m.phase != PhaseActive {
		return
	}
	if m.inFlight {
		m.metrics.PollsSkipped.Add(1)
		logger.Debug("Session", "Tick skipped, previous status request still in flight")
		return
	}
	m.inFlight = true
	m.metrics.PollsStarted.Add(1)

	gen := m.generation
	sessionCtx, loopCtx := m.sessionCtx, m.loopCtx
	timeout := m.cfg.requestTimeout()
	go func() {
		ctx, cancel := context.WithTimeout(sessionCtx, timeout)
		defer cancel()
		start := time.Now()
		reply, err := m.detector.FetchStatus(ctx)
		res := pollResult{generation: gen, reply: reply, err: err, latency: time.Since(start)}
		select {
		case m.results <- res:
		case <-loopCtx.Done():
		}
	}()
}

func (m *Manager) handlePoll(res pollResult) {
	if res.generation != m.generation || m.phase != PhaseActive {
		m.metrics.StaleResults.Add(1)
		logger.Debug("Session", "Discarded status reply from a superseded session")
		return
	}
	m.inFlight = false
	m.pollCount++
	m.metrics.UpdatePollLatency(res.latency)

	if res.err != nil {
		m.metrics.PollFailures.Add(1)
		if m.connected {
			logger.Warn("Session", "Detection service unreachable: %v", res.err)
		} else {
			logger.Debug("Session", "Status fetch failed: %v", res.err)
		}
		// The threat level is kept until a fetch succeeds.
		m.connected = false
		m.booted = false
		m.publish()
		return
	}

	now := m.clock.Now()
	snap := status.Parse(res.reply, now)
	if !m.connected {
		logger.Info("Session", "Detection service reachable again")
	}
	m.connected = true
	m.booted = snap.SystemActive
	m.snapshot = snap

	m.debouncer.Observe(snap.WeaponConfidence, now)
	m.weaponActive = m.debouncer.Active(now)
	level := m.classifier.Classify(threat.Signals{
		WeaponActive: m.weaponActive,
		Violence:     snap.ViolenceFlag,
		CrowdCount:   snap.CrowdCount,
	})
	if level != m.level {
		logger.Info("Session", "Threat level %s -> %s (weapon=%q violence=%q crowd=%d)",
			m.level, level, snap.WeaponText, snap.ViolenceText, snap.CrowdCount)
		m.metrics.ThreatChanges.Add(1)
	}
	m.level = level
	m.alarm.Evaluate(level)
	m.metrics.PollsApplied.Add(1)
	m.publish()
}

// resetSession returns every session field to idle. Results and
// activations of the old generation are discarded when they arrive.
func (m *Manager) resetSession() {
	m.generation++
	if m.sessionCancel != nil {
		m.sessionCancel()
		m.sessionCancel = nil
	}
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
	m.sessionCtx = nil
	m.inFlight = false
	m.phase = PhaseIdle
	m.sessionID = ""
	m.connected = false
	m.booted = false
	m.level = threat.Safe
	m.weaponActive = false
	m.snapshot = status.Empty()
	m.pollCount = 0
	m.debouncer.Reset()
	m.alarm.Reset()
}

func (m *Manager) shutdown() {
	m.resetSession()
	m.publish()
	logger.Info("Session", "Manager stopped")
}

func (m *Manager) publish() {
	s := State{
		SessionID:        m.sessionID,
		Phase:            m.phase,
		Active:           m.phase == PhaseActive,
		BackendConnected: m.connected,
		BootCompleted:    m.booted,
		ThreatLevel:      m.level,
		WeaponActive:     m.weaponActive,
		ViolenceActive:   m.snapshot.ViolenceFlag,
		CrowdAlert:       m.classifier.CrowdAlert(m.snapshot.CrowdCount),
		CrowdCount:       m.snapshot.CrowdCount,
		WeaponStatus:     m.snapshot.WeaponText,
		WeaponConfidence: m.snapshot.WeaponConfidence,
		ViolenceStatus:   m.snapshot.ViolenceText,
		Alarm:            m.alarm.State(),
		PollCount:        m.pollCount,
		LastError:        m.lastErr,
		LastSnapshotAt:   m.snapshot.ReceivedAt,
		UpdatedAt:        m.clock.Now(),
	}
	m.current.Store(&s)

	m.metrics.ThreatLevel.Store(uint64(s.ThreatLevel))
	m.metrics.CrowdCount.Store(uint64(s.CrowdCount))
	metrics.SetBool(&m.metrics.BackendConnected, s.BackendConnected)
	metrics.SetBool(&m.metrics.SessionActive, s.Active)

	m.observers.broadcast(s)
}
