package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-reply-service/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, zerolog.Nop())

	ev, err := domain.NewEvent(domain.EventTypeReviewPosted, "r1", domain.StatusPosted, map[string]string{"reply": "thanks"})
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), ev, nil))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "r1", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, domain.EventTypeReviewPosted, string(msg.Headers[0].Value))

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev.EventID, decoded.EventID)
	assert.Equal(t, domain.StatusPosted, decoded.Status)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_PublishEmpty(t *testing.T) {
	w := &fakeWriter{err: errors.New("must not be called")}
	p := newKafkaPublisher(w, zerolog.Nop())
	assert.NoError(t, p.Publish(context.Background()))
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := newKafkaPublisher(&fakeWriter{err: errors.New("broker down")}, zerolog.Nop())
	ev, err := domain.NewEvent(domain.EventTypeReviewFailed, "r1", domain.StatusFailed, nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), ev)
	assert.ErrorContains(t, err, "broker down")
}

func TestEmitter_SwallowsPublishErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	e := NewEmitter(newKafkaPublisher(w, zerolog.Nop()), zerolog.Nop())

	assert.NotPanics(t, func() {
		e.Emit(context.Background(), domain.EventTypeReviewIngested, "r1", domain.StatusIngested, nil)
	})

	var nilEmitter *Emitter
	assert.NotPanics(t, func() {
		nilEmitter.Emit(context.Background(), domain.EventTypeReviewIngested, "r1", domain.StatusIngested, nil)
	})
	assert.NoError(t, nilEmitter.Close())
}

func TestEmitter_DefaultsToNop(t *testing.T) {
	e := NewEmitter(nil, zerolog.Nop())
	e.Emit(context.Background(), domain.EventTypeReviewAnalyzed, "r1", domain.StatusPendingApproval, nil)
	assert.NoError(t, e.Close())
}

type fakeReader struct {
	msgs   []kafka.Message
	cancel context.CancelFunc
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_Run(t *testing.T) {
	ev, err := domain.NewEvent(domain.EventTypeReviewPosted, "r1", domain.StatusPosted, nil)
	require.NoError(t, err)
	value, err := json.Marshal(ev)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		msgs: []kafka.Message{
			{Value: []byte("not json")},
			{Value: value},
			{Value: value},
		},
		cancel: cancel,
	}
	c := newConsumer(reader, zerolog.Nop())

	var seen []string
	err = c.Run(ctx, func(_ context.Context, got *domain.Event) error {
		seen = append(seen, got.ReviewID)
		if len(seen) == 1 {
			return errors.New("handler failure is skipped")
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"r1", "r1"}, seen)
	assert.NoError(t, c.Close())
}
