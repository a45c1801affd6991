// Package supervisor runs the monitor's long-lived services under a suture
// tree so a crashed service is restarted without taking the others down.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/logger"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	FailureThreshold float64       // failures before backoff
	FailureDecay     float64       // seconds
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration // per service
}

// DefaultTreeConfig returns suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is organized into three layers:
//   - core: the session manager
//   - notify: push notifications and MQTT publishing
//   - api: the web monitor
//
// A failing notifier never interrupts polling or the dashboard.
type Tree struct {
	root   *suture.Supervisor
	core   *suture.Supervisor
	notify *suture.Supervisor
	api    *suture.Supervisor
}

// NewTree creates a tree; zero config fields take defaults.
func NewTree(cfg TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	childSpec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	rootSpec := childSpec
	rootSpec.EventHook = logEvent

	root := suture.New("cctv-monitor", rootSpec)
	core := suture.New("core-layer", childSpec)
	notify := suture.New("notify-layer", childSpec)
	api := suture.New("api-layer", childSpec)
	root.Add(core)
	root.Add(notify)
	root.Add(api)

	return &Tree{root: root, core: core, notify: notify, api: api}
}

func logEvent(e suture.Event) {
	switch ev := e.(type) {
	case suture.EventServicePanic:
		logger.Error("Supervisor", "Service %s panicked: %s", ev.ServiceName, ev.PanicMsg)
	case suture.EventServiceTerminate:
		logger.Warn("Supervisor", "Service %s terminated: %v (restarting=%v)", ev.ServiceName, ev.Err, ev.Restarting)
	case suture.EventBackoff:
		logger.Warn("Supervisor", "Supervisor %s entering backoff", ev.SupervisorName)
	case suture.EventResume:
		logger.Info("Supervisor", "Supervisor %s resumed", ev.SupervisorName)
	case suture.EventStopTimeout:
		logger.Error("Supervisor", "Service %s did not stop in time", ev.ServiceName)
	default:
		logger.Debug("Supervisor", "%s", e)
	}
}

func (t *Tree) AddCoreService(svc suture.Service) suture.ServiceToken {
	return t.core.Add(svc)
}

func (t *Tree) AddNotifyService(svc suture.Service) suture.ServiceToken {
	return t.notify.Add(svc)
}

func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve blocks until ctx is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree and returns a channel receiving its
// final error.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that outlived the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
