// Package approval implements the approval gate: it watches the owner's
// messaging channel for an affirmative reply and publishes the newest pending
// draft when one arrives.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/review-reply-service/internal/domain"
	"github.com/helixir/review-reply-service/internal/events"
	"github.com/helixir/review-reply-service/internal/messaging"
	"github.com/helixir/review-reply-service/internal/observability"
	"github.com/helixir/review-reply-service/internal/publisher"
	"github.com/helixir/review-reply-service/internal/repository"
)

// Outcome describes what a single poll did.
type Outcome string

const (
	OutcomeNoMessage     Outcome = "none"
	OutcomeStale         Outcome = "stale"
	OutcomeConsumed      Outcome = "consumed"
	OutcomeIgnored       Outcome = "ignored"
	OutcomeNoPending     Outcome = "no_pending"
	OutcomePosted        Outcome = "posted"
	OutcomePublishFailed Outcome = "publish_failed"
)

// Dependencies are the collaborators of a Gate.
type Dependencies struct {
	Reviews   repository.ReviewRepository
	Ledger    repository.ApprovalLedger
	Channel   messaging.Channel
	Publisher publisher.Publisher
	Events    *events.Emitter
	Metrics   *observability.Metrics
	Reporter  observability.Reporter
}

// Options tune approval detection.
type Options struct {
	// Tokens is the affirmative allow-list. Defaults to DefaultTokens.
	Tokens []string
	// MaxAge ignores messages older than this. Zero accepts any age.
	MaxAge time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Gate coordinates owner sign-off and the PENDING_APPROVAL -> POSTED transition.
type Gate struct {
	reviews   repository.ReviewRepository
	ledger    repository.ApprovalLedger
	channel   messaging.Channel
	publisher publisher.Publisher
	events    *events.Emitter
	metrics   *observability.Metrics
	reporter  observability.Reporter

	tokens TokenSet
	maxAge time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewGate validates the dependencies and builds a Gate.
func NewGate(deps Dependencies, opts Options, logger zerolog.Logger) (*Gate, error) {
	switch {
	case deps.Reviews == nil:
		return nil, domain.NewConfigurationError("approval.reviews", "review repository is required")
	case deps.Ledger == nil:
		return nil, domain.NewConfigurationError("approval.ledger", "approval ledger is required")
	case deps.Channel == nil:
		return nil, domain.NewConfigurationError("approval.channel", "messaging channel is required")
	case deps.Publisher == nil:
		return nil, domain.NewConfigurationError("approval.publisher", "publisher is required")
	}

	if len(opts.Tokens) == 0 {
		opts.Tokens = DefaultTokens
	}
	tokens := NewTokenSet(opts.Tokens)
	if len(tokens) == 0 {
		return nil, domain.NewConfigurationError("scheduler.approval_tokens", "no usable approval tokens")
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Reporter == nil {
		deps.Reporter = observability.NopReporter{}
	}

	return &Gate{
		reviews:   deps.Reviews,
		ledger:    deps.Ledger,
		channel:   deps.Channel,
		publisher: deps.Publisher,
		events:    deps.Events,
		metrics:   deps.Metrics,
		reporter:  deps.Reporter,
		tokens:    tokens,
		maxAge:    opts.MaxAge,
		now:       opts.Now,
		logger:    logger.With().Str("component", "approval_gate").Str("channel", deps.Channel.Name()).Logger(),
	}, nil
}

// PollOnce reads the latest inbound message and, when it is a fresh affirmative
// reply, publishes the newest pending draft. At most one record changes per call.
//
// A returned error means the poll could not complete (channel or store failure);
// publication failures are reported through OutcomePublishFailed instead.
func (g *Gate) PollOnce(ctx context.Context) (Outcome, error) {
	outcome, err := g.poll(ctx)
	if g.metrics != nil {
		g.metrics.RecordApprovalSignal(string(outcome))
	}
	return outcome, err
}

func (g *Gate) poll(ctx context.Context) (Outcome, error) {
	msg, err := g.channel.PollLatestInbound(ctx)
	if err != nil {
		return OutcomeNoMessage, fmt.Errorf("poll approval channel: %w", err)
	}
	if msg == nil {
		return OutcomeNoMessage, nil
	}

	log := g.logger.With().Str("message_id", msg.ID).Logger()

	if g.maxAge > 0 && !msg.Timestamp.IsZero() && g.now().Sub(msg.Timestamp) > g.maxAge {
		log.Debug().Time("sent_at", msg.Timestamp).Msg("ignoring stale message")
		return OutcomeStale, nil
	}

	consumed, err := g.ledger.IsConsumed(ctx, msg.ID)
	if err != nil {
		return OutcomeNoMessage, err
	}
	if consumed {
		return OutcomeConsumed, nil
	}

	if !g.tokens.Matches(msg.Body) {
		log.Debug().Str("body", msg.Body).Msg("latest message is not an approval")
		return OutcomeIgnored, nil
	}

	pending, err := g.reviews.Query(ctx, repository.ReviewFilter{
		Statuses:  domain.PendingStatuses,
		Direction: repository.SortDesc,
		Limit:     1,
	})
	if err != nil {
		return OutcomeNoMessage, fmt.Errorf("select pending review: %w", err)
	}

	var target *domain.Review
	if len(pending) > 0 {
		target = pending[0]
	}

	targetID := ""
	if target != nil {
		targetID = target.ReviewID
	}
	claimed, err := g.ledger.MarkConsumed(ctx, msg.ID, targetID)
	if err != nil {
		return OutcomeNoMessage, err
	}
	if !claimed {
		return OutcomeConsumed, nil
	}

	if target == nil {
		log.Info().Msg("approval received but no review is pending")
		return OutcomeNoPending, nil
	}

	return g.publish(ctx, target, log)
}

func (g *Gate) publish(ctx context.Context, r *domain.Review, log zerolog.Logger) (Outcome, error) {
	log = observability.WithReviewContext(log, r.ReviewID, r.BusinessID)

	ok, err := g.publisher.PostReply(ctx, r.ReviewID, r.DraftReply)
	if err != nil || !ok {
		if err == nil {
			err = errors.New("publisher reported failure")
		}
		log.Error().Err(err).Msg("failed to publish reply; review stays pending")
		if g.metrics != nil {
			g.metrics.RecordPublishFailure()
		}
		g.reporter.CaptureError(err, map[string]string{"review_id": r.ReviewID, "stage": "publish"})
		g.events.Emit(ctx, domain.EventTypeReviewPublishFailed, r.ReviewID, r.Status, map[string]string{"error": err.Error()})
		return OutcomePublishFailed, nil
	}

	postedAt := g.now()
	update := repository.StatusUpdate(domain.StatusPosted)
	update.PostedAt = &postedAt
	if err := g.reviews.Update(ctx, r.ReviewID, update); err != nil {
		// The reply is live; the record must be fixed by hand or it may be posted again.
		g.reporter.CaptureError(err, map[string]string{"review_id": r.ReviewID, "stage": "mark_posted"})
		return OutcomePosted, fmt.Errorf("reply for %s published but status not updated: %w", r.ReviewID, err)
	}

	if g.metrics != nil {
		g.metrics.RecordReplyPosted()
	}
	g.events.Emit(ctx, domain.EventTypeReviewPosted, r.ReviewID, domain.StatusPosted, map[string]any{
		"reply":     r.DraftReply,
		"posted_at": postedAt,
	})
	log.Info().Msg("reply posted")
	return OutcomePosted, nil
}
