package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-reply-service/internal/domain"
)

// doneToken is an already-completed mqtt.Token.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeMessage is an inbound mqtt.Message.
type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }

// fakeClient records publishes. Methods not overridden panic through the nil embedded interface.
type fakeClient struct {
	mqtt.Client
	mu         sync.Mutex
	connected  bool
	publishErr error
	published  [][]byte
	topics     []string
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	c.published = append(c.published, payload.([]byte))
	return doneToken{err: c.publishErr}
}

func newTestMQTT(client mqtt.Client) *MQTT {
	m := newMQTT(MQTTConfig{
		OutboundTopic: "reviews/approval/requests",
		InboundTopic:  "reviews/approval/replies",
		OwnerAddress:  "owner-phone",
	}, client, zerolog.Nop())
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return m
}

func TestNewMQTT_Configuration(t *testing.T) {
	_, err := NewMQTT(MQTTConfig{}, zerolog.Nop())
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	_, err = NewMQTT(MQTTConfig{Broker: "tcp://localhost:1883"}, zerolog.Nop())
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	m, err := NewMQTT(MQTTConfig{Broker: "tcp://localhost:1883", InboundTopic: "in", OutboundTopic: "out"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultMQTTTimeout, m.config.Timeout)
	assert.NotEmpty(t, m.config.ClientID)
}

func TestMQTT_Send(t *testing.T) {
	t.Run("publishes a JSON envelope", func(t *testing.T) {
		client := &fakeClient{connected: true}
		m := newTestMQTT(client)

		id, err := m.Send(context.Background(), "Reply OK/YES to post.")
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		require.Len(t, client.published, 1)
		assert.Equal(t, "reviews/approval/requests", client.topics[0])

		var p mqttPayload
		require.NoError(t, json.Unmarshal(client.published[0], &p))
		assert.Equal(t, id, p.ID)
		assert.Equal(t, "Reply OK/YES to post.", p.Body)
	})

	t.Run("fails when disconnected", func(t *testing.T) {
		_, err := newTestMQTT(&fakeClient{}).Send(context.Background(), "hi")
		assert.True(t, errors.Is(err, domain.ErrTransient))
	})

	t.Run("surfaces publish errors", func(t *testing.T) {
		client := &fakeClient{connected: true, publishErr: errors.New("broker refused")}
		_, err := newTestMQTT(client).Send(context.Background(), "hi")
		assert.ErrorContains(t, err, "broker refused")
	})
}

func TestMQTT_PollLatestInbound(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing received yields nil", func(t *testing.T) {
		msg, err := newTestMQTT(&fakeClient{}).PollLatestInbound(ctx)
		require.NoError(t, err)
		assert.Nil(t, msg)
	})

	t.Run("keeps the newest owner message", func(t *testing.T) {
		m := newTestMQTT(&fakeClient{})

		m.onMessage(nil, fakeMessage{payload: []byte(`{"id":"m2","from":"owner-phone","body":"YES","timestamp":"2026-01-02T10:00:00Z"}`)})
		m.onMessage(nil, fakeMessage{payload: []byte(`{"id":"m1","from":"owner-phone","body":"no","timestamp":"2026-01-02T09:00:00Z"}`)})
		m.onMessage(nil, fakeMessage{payload: []byte(`{"id":"m3","from":"stranger","body":"OK","timestamp":"2026-01-02T11:00:00Z"}`)})
		m.onMessage(nil, fakeMessage{payload: []byte(`{"id":"m4","from":"owner-phone","body":""}`)})

		msg, err := m.PollLatestInbound(ctx)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, "m2", msg.ID)
		assert.Equal(t, "YES", msg.Body)

		// Callers get a copy.
		msg.Body = "changed"
		again, _ := m.PollLatestInbound(ctx)
		assert.Equal(t, "YES", again.Body)
	})

	t.Run("owner address rejects unattributed payloads", func(t *testing.T) {
		m := newTestMQTT(&fakeClient{})
		m.onMessage(nil, fakeMessage{payload: []byte("OK")})
		m.onMessage(nil, fakeMessage{payload: []byte(`{"id":"m5","body":"OK","timestamp":"2026-01-02T12:00:00Z"}`)})

		msg, err := m.PollLatestInbound(ctx)
		require.NoError(t, err)
		assert.Nil(t, msg)
	})

	t.Run("accepts plain text payloads without an owner address", func(t *testing.T) {
		m := newTestMQTT(&fakeClient{})
		m.config.OwnerAddress = ""
		m.onMessage(nil, fakeMessage{payload: []byte("  ok  ")})

		msg, err := m.PollLatestInbound(ctx)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, "ok", msg.Body)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, m.now(), msg.Timestamp)
	})
}
