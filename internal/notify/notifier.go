// Package notify forwards threat transitions to people and systems outside
// the monitor: push messages through shoutrrr and state messages over MQTT.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sony/gobreaker/v2"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/logger"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/metrics"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/session"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/threat"
)

// Source publishes session states.
type Source interface {
	Subscribe() (int, <-chan session.State)
	Unsubscribe(id int)
}

// Sender delivers one push message.
type Sender interface {
	Send(ctx context.Context, title, message string) error
}

type Config struct {
	Cooldown time.Duration // minimum gap between messages for the same level
	Timeout  time.Duration // per send
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Cooldown: 12 * time.Second,
		Timeout:  10 * time.Second,
	}
}

var ErrThrottled = errors.New("notify: suppressed by cooldown")

// Notifier sends a push message whenever the threat level rises to
// Warning or Danger.
type Notifier struct {
	cfg     Config
	source  Source
	sender  Sender
	metrics *metrics.Metrics
	recent  *cache.Cache
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewNotifier(cfg Config, source Source, sender Sender, m *metrics.Metrics) *Notifier {
	def := DefaultConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if m == nil {
		m = metrics.New()
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "push-notifications",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Notify", "Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &Notifier{
		cfg:     cfg,
		source:  source,
		sender:  sender,
		metrics: m,
		recent:  cache.New(cfg.Cooldown, 0), // expired keys are ignored by Add; no janitor goroutine
		breaker: breaker,
	}
}

func (n *Notifier) String() string { return "notifier" }

// Serve watches the session until ctx is done.
func (n *Notifier) Serve(ctx context.Context) error {
	id, states := n.source.Subscribe()
	defer n.source.Unsubscribe(id)

	last := threat.Safe
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-states:
			if !ok {
				return nil
			}
			level := s.ThreatLevel
			if level > last && level != threat.Safe {
				if err := n.Notify(ctx, s); err != nil && !errors.Is(err, ErrThrottled) {
					logger.Warn("Notify", "Push notification failed: %v", err)
				}
			}
			last = level
		}
	}
}

// Notify sends the message for s unless one for the same level went out
// within the cooldown.
func (n *Notifier) Notify(ctx context.Context, s session.State) error {
	key := s.ThreatLevel.String()
	if err := n.recent.Add(key, struct{}{}, n.cfg.Cooldown); err != nil {
		n.metrics.NotificationsThrottled.Add(1)
		logger.Debug("Notify", "Suppressed %s notification (cooldown %v)", key, n.cfg.Cooldown)
		return ErrThrottled
	}

	title, body := Message(s)
	_, err := n.breaker.Execute(func() (struct{}, error) {
		sendCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()
		return struct{}{}, n.sender.Send(sendCtx, title, body)
	})
	if err != nil {
		n.metrics.NotificationsFailed.Add(1)
		// Let the next transition try again instead of waiting out the cooldown.
		n.recent.Delete(key)
		return err
	}
	n.metrics.NotificationsSent.Add(1)
	logger.Info("Notify", "Sent %s notification", key)
	return nil
}

// Message renders the push title and body for s.
func Message(s session.State) (title, body string) {
	switch s.ThreatLevel {
	case threat.Danger:
		title = "CRITICAL THREAT DETECTED"
	case threat.Warning:
		title = "HIGH CROWD DENSITY"
	default:
		title = "Area secure"
	}

	body = fmt.Sprintf("%s\nWeapon: %s\nViolence: %s\nCrowd: %d",
		title, s.WeaponStatus, s.ViolenceStatus, s.CrowdCount)
	if !s.UpdatedAt.IsZero() {
		body += "\nTime: " + s.UpdatedAt.Format(time.RFC3339)
	}
	if s.SessionID != "" {
		body += "\nSession: " + s.SessionID
	}
	return title, body
}
