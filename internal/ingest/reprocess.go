package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/helixir/review-reply-service/internal/domain"
	"github.com/helixir/review-reply-service/internal/observability"
	"github.com/helixir/review-reply-service/internal/repository"
)

// ReprocessRequest selects the records to analyze again.
type ReprocessRequest struct {
	// ReviewIDs limits the run to these records. Empty selects every INGESTED record.
	ReviewIDs []string
	// Limit caps the number of records selected by status.
	Limit int
}

// Reprocess runs the pipeline for records that never left INGESTED, oldest first.
// Records in any other status are skipped: analysis is written once.
func (s *Service) Reprocess(ctx context.Context, req ReprocessRequest) (CycleStats, error) {
	stats := CycleStats{CycleID: uuid.New().String()}
	ctx = observability.WithCycleID(ctx, stats.CycleID)
	logger := observability.WithCycleContext(s.logger, stats.CycleID, "reprocess")

	records, err := s.selectForReprocess(ctx, req)
	if err != nil {
		return stats, err
	}
	stats.Fetched = len(records)

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("%w: %w", domain.ErrCancelled, err)
		}

		log := observability.WithReviewContext(logger, record.ReviewID, record.BusinessID)
		if record.Status != domain.StatusIngested {
			stats.Skipped++
			log.Info().Str("status", string(record.Status)).Msg("skipping review that is not awaiting analysis")
			continue
		}
		if err := s.analyze(ctx, log, record, &stats); err != nil {
			return stats, err
		}
	}

	logger.Info().
		Int("selected", stats.Fetched).
		Int("analyzed", stats.Analyzed).
		Int("failed", stats.Failed).
		Msg("reprocess completed")
	return stats, nil
}

func (s *Service) selectForReprocess(ctx context.Context, req ReprocessRequest) ([]*domain.Review, error) {
	if len(req.ReviewIDs) == 0 {
		records, err := s.reviews.Query(ctx, repository.ReviewFilter{
			Statuses:  []domain.ReviewStatus{domain.StatusIngested},
			Direction: repository.SortAsc,
			Limit:     req.Limit,
		})
		if err != nil {
			return nil, fmt.Errorf("select ingested reviews: %w", err)
		}
		return records, nil
	}

	records := make([]*domain.Review, 0, len(req.ReviewIDs))
	for _, id := range req.ReviewIDs {
		r, err := s.reviews.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Str("review_id", id).Msg("review not found; skipping")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load review %s: %w", id, err)
		}
		records = append(records, r)
	}
	return records, nil
}
