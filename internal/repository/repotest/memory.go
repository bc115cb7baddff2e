// Package repotest provides in-memory repository implementations for tests of
// components that sit above the store.
package repotest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/helixir/review-reply-service/internal/domain"
	"github.com/helixir/review-reply-service/internal/repository"
)

// Reviews is an in-memory repository.ReviewRepository with the same lifecycle
// rules as the PostgreSQL implementation.
type Reviews struct {
	mu      sync.Mutex
	records map[string]*domain.Review
	now     func() time.Time

	// Inserts counts successful inserts.
	Inserts int
	// FailUpdate, when set, is returned by Update.
	FailUpdate error
}

var _ repository.ReviewRepository = (*Reviews)(nil)

// NewReviews creates an empty in-memory store.
func NewReviews() *Reviews {
	return &Reviews{
		records: make(map[string]*domain.Review),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Seed stores records as-is, bypassing validation.
func (s *Reviews) Seed(records ...*domain.Review) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		cp := *r
		s.records[r.ReviewID] = &cp
	}
}

// Snapshot returns a copy of the stored record or nil.
func (s *Reviews) Snapshot(reviewID string) *domain.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[reviewID]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

// Len returns the number of stored records.
func (s *Reviews) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Reviews) Exists(_ context.Context, reviewID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[reviewID]
	return ok, nil
}

func (s *Reviews) Insert(ctx context.Context, review *domain.Review) error {
	inserted, err := s.InsertIfAbsent(ctx, review)
	if err != nil {
		return err
	}
	if !inserted {
		return domain.NewAlreadyExistsError("review", review.ReviewID)
	}
	return nil
}

func (s *Reviews) InsertIfAbsent(_ context.Context, review *domain.Review) (bool, error) {
	if review == nil || strings.TrimSpace(review.ReviewID) == "" {
		return false, domain.NewValidationError("review_id", "review ID is required")
	}
	if review.Rating < 0 || review.Rating > domain.MaxRating {
		return false, domain.NewValidationError("rating", fmt.Sprintf("rating %d out of range", review.Rating))
	}
	if review.Status == "" {
		review.Status = domain.StatusIngested
	}
	if !review.Status.Valid() {
		return false, domain.NewValidationError("status", "unknown status "+string(review.Status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[review.ReviewID]; ok {
		return false, nil
	}

	now := s.now()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = now
	}
	review.UpdatedAt = now
	cp := *review
	s.records[review.ReviewID] = &cp
	s.Inserts++
	return true, nil
}

func (s *Reviews) Get(_ context.Context, reviewID string) (*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[reviewID]
	if !ok {
		return nil, domain.NewNotFoundError("review", reviewID)
	}
	cp := *r
	return &cp, nil
}

func (s *Reviews) Update(_ context.Context, reviewID string, update repository.ReviewUpdate) error {
	if s.FailUpdate != nil {
		return s.FailUpdate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[reviewID]
	if !ok {
		return domain.NewNotFoundError("review", reviewID)
	}
	if update.Status != nil && !r.Status.CanTransitionTo(*update.Status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, r.Status, *update.Status)
	}
	if update.Analysis != nil && r.Trace != nil {
		return fmt.Errorf("review %s analysis trace: %w", reviewID, domain.ErrImmutable)
	}

	if update.Analysis != nil {
		r.ApplyAnalysis(update.Analysis)
	}
	if update.Status != nil {
		r.Status = *update.Status
	}
	if update.PostedAt != nil {
		t := *update.PostedAt
		r.PostedAt = &t
	}
	r.UpdatedAt = s.now()
	return nil
}

func (s *Reviews) Query(_ context.Context, filter repository.ReviewFilter) ([]*domain.Review, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Review, 0, len(s.records))
	for _, r := range s.records {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, r.Status) {
			continue
		}
		if filter.BusinessID != "" && r.BusinessID != filter.BusinessID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if filter.Direction == repository.SortAsc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if filter.Direction == repository.SortAsc {
			return a.ReviewID < b.ReviewID
		}
		return a.ReviewID > b.ReviewID
	})

	if filter.Offset >= len(out) {
		return []*domain.Review{}, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Reviews) RecentDraftedReplies(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	all, err := s.Query(ctx, repository.ReviewFilter{Limit: 1000})
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, r := range all {
		if r.DraftReply == "" {
			continue
		}
		out = append(out, r.DraftReply)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Reviews) DeleteDegraded(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.records {
		if r.Status == domain.StatusPosted {
			continue
		}
		if slices.Contains(domain.DegradedMarkers, r.LocalizedSummary) ||
			slices.Contains(domain.DegradedMarkers, r.LocalizedReply) ||
			r.Category == domain.CategoryAnalysisFailed {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Ledger is an in-memory repository.ApprovalLedger.
type Ledger struct {
	mu       sync.Mutex
	consumed map[string]string
}

var _ repository.ApprovalLedger = (*Ledger)(nil)

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{consumed: make(map[string]string)}
}

func (l *Ledger) IsConsumed(_ context.Context, messageID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.consumed[messageID]
	return ok, nil
}

func (l *Ledger) MarkConsumed(_ context.Context, messageID, reviewID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.consumed[messageID]; ok {
		return false, nil
	}
	l.consumed[messageID] = reviewID
	return true, nil
}

// ReviewFor returns the review a consumed message was applied to.
func (l *Ledger) ReviewFor(messageID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.consumed[messageID]
	return id, ok
}
