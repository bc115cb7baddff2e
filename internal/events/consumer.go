package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/review-reply-service/internal/domain"
)

// Handler processes one consumed event.
type Handler func(ctx context.Context, ev *domain.Event) error

// messageReader is the subset of *kafka.Reader used by Consumer.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads lifecycle events from Kafka.
type Consumer struct {
	reader messageReader
	logger zerolog.Logger
}

// NewConsumer creates a consumer for the given topic and consumer group.
func NewConsumer(brokers []string, topic, groupID string, logger zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
	return newConsumer(reader, logger)
}

func newConsumer(reader messageReader, logger zerolog.Logger) *Consumer {
	return &Consumer{
		reader: reader,
		logger: logger.With().Str("component", "event_consumer").Logger(),
	}
}

// Run reads events until the context is cancelled. Malformed messages and
// handler errors are logged and skipped.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	c.logger.Info().Msg("starting event consumer")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info().Msg("event consumer stopped via context cancellation")
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("failed to read message from Kafka")
			continue
		}

		var ev domain.Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.logger.Error().Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("failed to unmarshal event")
			continue
		}

		if err := handle(ctx, &ev); err != nil {
			c.logger.Error().Err(err).
				Str("event_id", ev.EventID).
				Str("review_id", ev.ReviewID).
				Msg("failed to handle event")
		}
	}
}

// Close closes the Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
