// Package ingest runs the ingestion cycle: fetch new reviews, store them,
// analyze them one at a time and ask the owner for approval.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/review-reply-service/internal/alerts"
	"github.com/helixir/review-reply-service/internal/analysis"
	"github.com/helixir/review-reply-service/internal/domain"
	"github.com/helixir/review-reply-service/internal/events"
	"github.com/helixir/review-reply-service/internal/fetcher"
	"github.com/helixir/review-reply-service/internal/messaging"
	"github.com/helixir/review-reply-service/internal/observability"
	"github.com/helixir/review-reply-service/internal/repository"
)

// DefaultHistoryLimit is the number of recent drafted replies passed to the pipeline.
const DefaultHistoryLimit = 5

// Analyzer runs the analysis pipeline for one review.
type Analyzer interface {
	Process(ctx context.Context, in analysis.Input) (*analysis.Result, error)
}

// Ensure the pipeline satisfies Analyzer.
var _ Analyzer = (*analysis.Pipeline)(nil)

// Dependencies are the collaborators of a Service.
type Dependencies struct {
	Fetcher  fetcher.Fetcher
	Reviews  repository.ReviewRepository
	Analyzer Analyzer
	Channel  messaging.Channel
	Events   *events.Emitter
	Alerts   alerts.Notifier
	Metrics  *observability.Metrics
	Reporter observability.Reporter
}

// Options configures a Service.
type Options struct {
	// BusinessID is the source identifier of the business whose reviews are ingested.
	BusinessID string
	// BusinessName is stored with each record.
	BusinessName string
	// SourceName labels data-shape errors. Defaults to "dataforseo".
	SourceName string
	// HistoryLimit caps the drafted replies used as context. Negative disables history.
	HistoryLimit int
	// AlertPolicy selects reviews that also raise an operator alert.
	AlertPolicy alerts.Policy
	// OwnerLanguage labels the localized text in approval requests.
	// Defaults to analysis.DefaultOwnerLanguage.
	OwnerLanguage string
}

// CycleStats summarizes one ingestion or reprocess pass.
type CycleStats struct {
	CycleID    string `json:"cycle_id"`
	Fetched    int    `json:"fetched"`
	Invalid    int    `json:"invalid"`
	Duplicates int    `json:"duplicates"`
	Skipped    int    `json:"skipped"`
	Ingested   int    `json:"ingested"`
	Analyzed   int    `json:"analyzed"`
	Failed     int    `json:"failed"`
	Notified   int    `json:"notified"`
	Alerted    int    `json:"alerted"`
}

// Service runs ingestion cycles. Reviews are processed sequentially so at most
// one analysis call is in flight.
type Service struct {
	fetcher  fetcher.Fetcher
	reviews  repository.ReviewRepository
	analyzer Analyzer
	channel  messaging.Channel
	events   *events.Emitter
	alerts   alerts.Notifier
	metrics  *observability.Metrics
	reporter observability.Reporter

	opts   Options
	logger zerolog.Logger
}

// NewService validates the dependencies and builds a Service.
func NewService(deps Dependencies, opts Options, logger zerolog.Logger) (*Service, error) {
	switch {
	case deps.Reviews == nil:
		return nil, domain.NewConfigurationError("ingest.reviews", "review repository is required")
	case deps.Analyzer == nil:
		return nil, domain.NewConfigurationError("ingest.analyzer", "analysis pipeline is required")
	case deps.Channel == nil:
		return nil, domain.NewConfigurationError("ingest.channel", "messaging channel is required")
	}

	if opts.SourceName == "" {
		opts.SourceName = "dataforseo"
	}
	if opts.OwnerLanguage == "" {
		opts.OwnerLanguage = analysis.DefaultOwnerLanguage
	}
	if opts.HistoryLimit == 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if deps.Alerts == nil {
		deps.Alerts = alerts.Nop{}
	}
	if deps.Reporter == nil {
		deps.Reporter = observability.NopReporter{}
	}

	return &Service{
		fetcher:  deps.Fetcher,
		reviews:  deps.Reviews,
		analyzer: deps.Analyzer,
		channel:  deps.Channel,
		events:   deps.Events,
		alerts:   deps.Alerts,
		metrics:  deps.Metrics,
		reporter: deps.Reporter,
		opts:     opts,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}, nil
}

// RunOnce fetches the business's reviews and processes every new one. Invalid
// and already-stored reviews are skipped. A store write failure aborts the cycle.
func (s *Service) RunOnce(ctx context.Context) (CycleStats, error) {
	stats := CycleStats{CycleID: uuid.New().String()}
	ctx = observability.WithCycleID(ctx, stats.CycleID)
	logger := observability.WithCycleContext(s.logger, stats.CycleID, "ingest")

	if s.fetcher == nil {
		return stats, domain.NewConfigurationError("fetcher", "review source is not configured")
	}
	if s.opts.BusinessID == "" {
		return stats, domain.NewConfigurationError("fetcher.business_id", "business ID is required for ingestion")
	}

	raws, err := s.fetcher.FetchReviews(ctx, s.opts.BusinessID)
	if err != nil {
		return stats, fmt.Errorf("fetch reviews: %w", err)
	}
	stats.Fetched = len(raws)
	if s.metrics != nil {
		s.metrics.RecordFetched(len(raws))
	}

	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("%w: %w", domain.ErrCancelled, err)
		}
		if err := s.ingestOne(ctx, logger, raw, &stats); err != nil {
			return stats, err
		}
	}

	logger.Info().
		Int("fetched", stats.Fetched).
		Int("ingested", stats.Ingested).
		Int("duplicates", stats.Duplicates).
		Int("invalid", stats.Invalid).
		Int("failed", stats.Failed).
		Msg("ingestion cycle completed")

	return stats, nil
}

func (s *Service) ingestOne(ctx context.Context, logger zerolog.Logger, raw domain.RawReview, stats *CycleStats) error {
	if err := raw.Validate(s.opts.SourceName); err != nil {
		stats.Invalid++
		s.recordSkipped("invalid")
		logger.Warn().Err(err).Str("author", raw.AuthorName).Msg("skipping malformed review")
		return nil
	}

	record := raw.ToRecord(s.opts.BusinessID, s.opts.BusinessName)
	logger = observability.WithReviewContext(logger, record.ReviewID, record.BusinessID)

	exists, err := s.reviews.Exists(ctx, record.ReviewID)
	if err != nil {
		return fmt.Errorf("check review %s: %w", record.ReviewID, err)
	}
	if exists {
		stats.Duplicates++
		s.recordSkipped("duplicate")
		return nil
	}

	inserted, err := s.reviews.InsertIfAbsent(ctx, record)
	if err != nil {
		return fmt.Errorf("store review %s: %w", record.ReviewID, err)
	}
	if !inserted {
		stats.Duplicates++
		s.recordSkipped("duplicate")
		return nil
	}

	stats.Ingested++
	if s.metrics != nil {
		s.metrics.RecordIngested()
	}
	s.events.Emit(ctx, domain.EventTypeReviewIngested, record.ReviewID, record.Status, map[string]any{
		"rating":      record.Rating,
		"business_id": record.BusinessID,
	})
	logger.Info().Int("rating", record.Rating).Msg("review ingested")

	return s.analyze(ctx, logger, record, stats)
}

// analyze runs the pipeline for an INGESTED record and requests approval.
func (s *Service) analyze(ctx context.Context, logger zerolog.Logger, record *domain.Review, stats *CycleStats) error {
	history, err := s.reviews.RecentDraftedReplies(ctx, s.opts.HistoryLimit)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load drafted reply history; continuing without it")
		history = nil
	}

	res, err := s.analyzer.Process(ctx, analysis.InputFromReview(record, history))
	if err != nil || res == nil || res.Trace == nil {
		if errors.Is(err, domain.ErrCancelled) {
			// Left INGESTED for reprocessing.
			return err
		}
		if err == nil {
			err = errors.New("pipeline returned no result")
		}
		return s.markFailed(ctx, logger, record, err, stats)
	}

	pending := domain.StatusPendingApproval
	if err := s.reviews.Update(ctx, record.ReviewID, repository.ReviewUpdate{
		Status:   &pending,
		Analysis: res.Trace,
	}); err != nil {
		return fmt.Errorf("store analysis for %s: %w", record.ReviewID, err)
	}

	record.ApplyAnalysis(res.Trace)
	record.Status = pending
	stats.Analyzed++
	if s.metrics != nil {
		s.metrics.RecordAnalyzed()
	}
	s.events.Emit(ctx, domain.EventTypeReviewAnalyzed, record.ReviewID, pending, map[string]any{
		"sentiment": record.Sentiment,
		"category":  record.Category,
		"risk_flag": record.RiskFlag,
		"degraded":  res.Degraded(),
	})

	s.requestApproval(ctx, logger, record, stats)
	s.alertIfNeeded(ctx, logger, record, stats)
	return nil
}

func (s *Service) markFailed(ctx context.Context, logger zerolog.Logger, record *domain.Review, cause error, stats *CycleStats) error {
	logger.Error().Err(cause).Msg("analysis failed; marking review as failed")
	s.reporter.CaptureError(cause, map[string]string{"review_id": record.ReviewID, "stage": "analysis"})

	if err := s.reviews.Update(ctx, record.ReviewID, repository.StatusUpdate(domain.StatusFailed)); err != nil {
		return fmt.Errorf("mark review %s failed: %w", record.ReviewID, err)
	}

	stats.Failed++
	if s.metrics != nil {
		s.metrics.RecordFailed()
	}
	s.events.Emit(ctx, domain.EventTypeReviewFailed, record.ReviewID, domain.StatusFailed, map[string]string{"error": cause.Error()})
	return nil
}

// requestApproval sends the approval request. A send failure leaves the record
// pending; the owner can still approve it from a later request.
func (s *Service) requestApproval(ctx context.Context, logger zerolog.Logger, record *domain.Review, stats *CycleStats) {
	deliveryID, err := s.channel.Send(ctx, messaging.FormatApprovalRequest(record, s.opts.OwnerLanguage))
	if err != nil {
		logger.Error().Err(err).Msg("failed to send approval request")
		s.reporter.CaptureError(err, map[string]string{"review_id": record.ReviewID, "stage": "approval_request"})
		return
	}

	stats.Notified++
	if s.metrics != nil {
		s.metrics.RecordApprovalRequestSent()
	}
	s.events.Emit(ctx, domain.EventTypeApprovalRequested, record.ReviewID, record.Status, map[string]string{
		"delivery_id": deliveryID,
		"channel":     s.channel.Name(),
	})
	logger.Info().Str("delivery_id", deliveryID).Msg("approval requested")
}

func (s *Service) alertIfNeeded(ctx context.Context, logger zerolog.Logger, record *domain.Review, stats *CycleStats) {
	if !s.opts.AlertPolicy.ShouldAlert(record) {
		return
	}
	title, body := alerts.Message(record)
	if err := s.alerts.Notify(ctx, title, body); err != nil {
		logger.Warn().Err(err).Msg("failed to send operator alert")
		return
	}
	stats.Alerted++
}

func (s *Service) recordSkipped(reason string) {
	if s.metrics != nil {
		s.metrics.RecordSkipped(reason)
	}
}
