package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/helixir/review-reply-service/internal/domain"
)

// Emitter builds lifecycle events and publishes them. Publish failures are
// logged and swallowed so they never affect the record that changed.
type Emitter struct {
	publisher Publisher
	logger    zerolog.Logger
}

// NewEmitter creates an Emitter. A nil publisher discards events.
func NewEmitter(publisher Publisher, logger zerolog.Logger) *Emitter {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Emitter{
		publisher: publisher,
		logger:    logger.With().Str("component", "event_emitter").Logger(),
	}
}

// Emit creates and publishes one event.
func (e *Emitter) Emit(ctx context.Context, eventType, reviewID string, status domain.ReviewStatus, payload any) {
	if e == nil {
		return
	}

	ev, err := domain.NewEvent(eventType, reviewID, status, payload)
	if err != nil {
		e.logger.Error().Err(err).Str("event_type", eventType).Str("review_id", reviewID).Msg("failed to build event")
		return
	}

	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("review_id", reviewID).
			Msg("failed to publish event")
	}
}

// Close closes the underlying publisher.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	return e.publisher.Close()
}
