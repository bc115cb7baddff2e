package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/review-reply-service/internal/domain"
)

const (
	mqttName = "mqtt"
	// DefaultMQTTTimeout bounds connect, subscribe and publish round trips.
	DefaultMQTTTimeout = 10 * time.Second
)

// MQTTConfig holds MQTT broker settings.
type MQTTConfig struct {
	Broker        string
	ClientID      string
	Username      string
	Password      string
	OutboundTopic string
	InboundTopic  string
	// OwnerAddress, when set, must match the "from" field of inbound payloads.
	OwnerAddress string
	QoS          byte
	Timeout      time.Duration
}

// mqttPayload is the JSON envelope used in both directions. Inbound plain-text payloads
// are accepted as the body alone.
type mqttPayload struct {
	ID        string    `json:"id"`
	From      string    `json:"from,omitempty"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// MQTT implements Channel over a broker: approval requests are published to the
// outbound topic and the owner's app publishes replies to the inbound topic.
type MQTT struct {
	config MQTTConfig
	client mqtt.Client
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	latest *domain.InboundMessage
}

// Ensure MQTT implements Channel.
var _ Channel = (*MQTT)(nil)

// NewMQTT creates an MQTT channel. Call Connect before use.
func NewMQTT(cfg MQTTConfig, logger zerolog.Logger) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, domain.NewConfigurationError("messaging.mqtt.broker", "broker URL is required")
	}
	if cfg.OutboundTopic == "" || cfg.InboundTopic == "" {
		return nil, domain.NewConfigurationError("messaging.mqtt.inbound_topic", "inbound and outbound topics are required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "review-reply-" + uuid.NewString()[:8]
	}

	m := newMQTT(cfg, nil, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(m.config.Timeout)
	// Subscriptions do not survive a clean-session reconnect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if err := m.subscribe(); err != nil {
			m.logger.Error().Err(err).Msg("resubscribe failed")
		}
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		m.logger.Warn().Err(err).Str("broker", cfg.Broker).Msg("connection to broker lost")
	})

	m.client = mqtt.NewClient(opts)
	return m, nil
}

func newMQTT(cfg MQTTConfig, client mqtt.Client, logger zerolog.Logger) *MQTT {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultMQTTTimeout
	}
	return &MQTT{
		config: cfg,
		client: client,
		logger: logger.With().Str("component", "messaging").Str("channel", mqttName).Logger(),
		now:    time.Now,
	}
}

// Name returns "mqtt".
func (m *MQTT) Name() string { return mqttName }

// Connect opens the broker connection. The inbound subscription is made by the
// on-connect handler.
func (m *MQTT) Connect(ctx context.Context) error {
	token := m.client.Connect()
	if err := m.wait(ctx, token); err != nil {
		return domain.NewExternalAPIError(mqttName, 0, "connect to "+m.config.Broker, err)
	}
	m.logger.Info().Str("broker", m.config.Broker).Msg("connected to broker")
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}

func (m *MQTT) subscribe() error {
	token := m.client.Subscribe(m.config.InboundTopic, m.config.QoS, m.onMessage)
	if !token.WaitTimeout(m.config.Timeout) {
		return fmt.Errorf("subscribe to %s timed out", m.config.InboundTopic)
	}
	return token.Error()
}

// Send publishes body to the outbound topic and returns the generated message id.
func (m *MQTT) Send(ctx context.Context, body string) (string, error) {
	if !m.client.IsConnected() {
		return "", domain.NewExternalAPIError(mqttName, 0, "not connected to broker", nil)
	}

	payload := mqttPayload{ID: uuid.NewString(), Body: body, Timestamp: m.now().UTC()}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	token := m.client.Publish(m.config.OutboundTopic, m.config.QoS, false, data)
	if err := m.wait(ctx, token); err != nil {
		return "", domain.NewExternalAPIError(mqttName, 0, "publish to "+m.config.OutboundTopic, err)
	}

	m.logger.Info().Str("message_id", payload.ID).Msg("approval request sent")
	return payload.ID, nil
}

// PollLatestInbound returns a copy of the newest message received on the inbound topic.
func (m *MQTT) PollLatestInbound(ctx context.Context) (*domain.InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.latest == nil {
		return nil, nil
	}
	msg := *m.latest
	return &msg, nil
}

func (m *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	in, ok := m.decode(msg.Payload())
	if !ok {
		return
	}
	// With an owner address configured, unattributed payloads (plain text or a JSON
	// body without "from") are rejected along with foreign senders.
	if m.config.OwnerAddress != "" && in.From != m.config.OwnerAddress {
		m.logger.Warn().Str("from", in.From).Msg("ignoring message from unknown sender")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest != nil && in.Timestamp.Before(m.latest.Timestamp) {
		return
	}
	m.latest = in
}

func (m *MQTT) decode(data []byte) (*domain.InboundMessage, bool) {
	var p mqttPayload
	if err := json.Unmarshal(data, &p); err != nil {
		// Plain-text reply from a simple client.
		body := strings.TrimSpace(string(data))
		if body == "" {
			return nil, false
		}
		return &domain.InboundMessage{ID: uuid.NewString(), Body: body, Timestamp: m.now().UTC()}, true
	}

	if p.Body == "" {
		m.logger.Warn().Msg("ignoring inbound payload without body")
		return nil, false
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = m.now()
	}
	return &domain.InboundMessage{ID: p.ID, From: p.From, Body: p.Body, Timestamp: p.Timestamp.UTC()}, true
}

// wait blocks until the token completes, ctx ends, or the configured timeout passes.
func (m *MQTT) wait(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(m.config.Timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", m.config.Timeout)
	}
}
