package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/logger"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/metrics"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/session"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/threat"
)

// Broker is a message broker connection.
type Broker interface {
	Connect() error
	Publish(topic string, payload []byte) error
	Close()
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// PahoBroker is a Broker backed by an MQTT client.
type PahoBroker struct {
	client  mqtt.Client
	timeout time.Duration
}

func NewPahoBroker(cfg MQTTConfig) *PahoBroker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT", "Connected to %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT", "Connection lost: %v", err)
	})
	return &PahoBroker{client: mqtt.NewClient(opts), timeout: cfg.Timeout}
}

func (b *PahoBroker) Connect() error {
	token := b.client.Connect()
	if !token.WaitTimeout(b.timeout) {
		return errors.New("mqtt: connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect: %w", err)
	}
	return nil
}

// Publish sends a retained QoS 1 message.
func (b *PahoBroker) Publish(topic string, payload []byte) error {
	token := b.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(b.timeout) {
		return errors.New("mqtt: publish timeout")
	}
	return token.Error()
}

func (b *PahoBroker) Close() {
	b.client.Disconnect(250)
}

// StateMessage is the MQTT payload.
type StateMessage struct {
	SessionID        string       `json:"sessionId,omitempty"`
	Phase            string       `json:"phase"`
	ThreatLevel      threat.Level `json:"threatLevel"`
	BackendConnected bool         `json:"backendConnected"`
	WeaponStatus     string       `json:"weaponStatus"`
	ViolenceStatus   string       `json:"violenceStatus"`
	CrowdCount       int          `json:"crowdCount"`
	AlarmPlaying     bool         `json:"alarmPlaying"`
	Timestamp        time.Time    `json:"timestamp"`
}

func newStateMessage(s session.State) StateMessage {
	return StateMessage{
		SessionID:        s.SessionID,
		Phase:            s.Phase.String(),
		ThreatLevel:      s.ThreatLevel,
		BackendConnected: s.BackendConnected,
		WeaponStatus:     s.WeaponStatus,
		ViolenceStatus:   s.ViolenceStatus,
		CrowdCount:       s.CrowdCount,
		AlarmPlaying:     s.Alarm.Playing,
		Timestamp:        s.UpdatedAt,
	}
}

// changeKey covers the fields whose change triggers a publish.
type changeKey struct {
	phase     session.Phase
	level     threat.Level
	connected bool
	playing   bool
}

// StatePublisher publishes the session state on every threat level,
// phase, connectivity or alarm change.
type StatePublisher struct {
	source  Source
	broker  Broker
	topic   string
	metrics *metrics.Metrics
}

func NewStatePublisher(source Source, broker Broker, topic string, m *metrics.Metrics) *StatePublisher {
	if m == nil {
		m = metrics.New()
	}
	return &StatePublisher{source: source, broker: broker, topic: topic, metrics: m}
}

func (p *StatePublisher) String() string { return "mqtt-publisher" }

func (p *StatePublisher) Serve(ctx context.Context) error {
	if err := p.broker.Connect(); err != nil {
		return err
	}
	defer p.broker.Close()

	id, states := p.source.Subscribe()
	defer p.source.Unsubscribe(id)

	var last *changeKey
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-states:
			if !ok {
				return nil
			}
			key := changeKey{s.Phase, s.ThreatLevel, s.BackendConnected, s.Alarm.Playing}
			if last != nil && *last == key {
				continue
			}
			if err := p.publish(s); err != nil {
				p.metrics.MQTTErrors.Add(1)
				logger.Warn("MQTT", "Publish to %s failed: %v", p.topic, err)
				continue
			}
			last = &key
		}
	}
}

func (p *StatePublisher) publish(s session.State) error {
	payload, err := json.Marshal(newStateMessage(s))
	if err != nil {
		return err
	}
	if err := p.broker.Publish(p.topic, payload); err != nil {
		return err
	}
	p.metrics.MQTTPublished.Add(1)
	logger.Debug("MQTT", "Published %s to %s", s.ThreatLevel, p.topic)
	return nil
}
