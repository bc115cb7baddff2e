package repository

import (
	"context"
	"strings"
	"time"

	"github.com/helixir/review-reply-service/internal/domain"
)

// ReviewRepository handles review record persistence and lifecycle management.
// Records are keyed by the source-assigned review_id.
type ReviewRepository interface {
	// Exists reports whether a record with the given review_id is stored.
	Exists(ctx context.Context, reviewID string) (bool, error)

	// Insert creates a new record. Write failures are returned, never swallowed.
	// Returns domain.ErrAlreadyExists if a record with the same review_id exists.
	// Returns domain.ErrInvalidInput if the review_id is empty or the status is unknown.
	Insert(ctx context.Context, review *domain.Review) error

	// InsertIfAbsent creates the record unless one with the same review_id exists.
	// It reports whether a row was written.
	InsertIfAbsent(ctx context.Context, review *domain.Review) (bool, error)

	// Get retrieves a record by review_id.
	// Returns domain.ErrNotFound if no matching record exists.
	Get(ctx context.Context, reviewID string) (*domain.Review, error)

	// Update applies a partial update under a row lock and always advances updated_at.
	//
	//   - A status change must be a forward transition (domain.ErrInvalidStatusTransition).
	//   - The analysis trace can be written once (domain.ErrImmutable).
	//   - Returns domain.ErrNotFound if no matching record exists.
	Update(ctx context.Context, reviewID string, update ReviewUpdate) error

	// Query retrieves records matching the filter ordered by created_at.
	Query(ctx context.Context, filter ReviewFilter) ([]*domain.Review, error)

	// RecentDraftedReplies returns up to limit non-empty draft replies, newest first.
	RecentDraftedReplies(ctx context.Context, limit int) ([]string, error)

	// DeleteDegraded removes records whose analysis carries a degraded marker and
	// returns the number of rows deleted.
	DeleteDegraded(ctx context.Context) (int64, error)
}

// SortDirection is the created_at ordering of a query.
type SortDirection string

const (
	SortDesc SortDirection = "DESC"
	SortAsc  SortDirection = "ASC"
)

// ReviewFilter specifies criteria for querying review records.
type ReviewFilter struct {
	// Statuses filters by one or more statuses (optional).
	// When multiple statuses are provided, records matching any status are returned.
	Statuses []domain.ReviewStatus

	// BusinessID filters by business (optional).
	BusinessID string

	// Direction orders by created_at (default: DESC).
	Direction SortDirection

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks if the filter has valid values and sets defaults.
func (f *ReviewFilter) Validate() error {
	for _, s := range f.Statuses {
		if !s.Valid() {
			return domain.NewValidationError("status", "unknown status "+string(s))
		}
	}

	switch SortDirection(strings.ToUpper(string(f.Direction))) {
	case "", SortDesc:
		f.Direction = SortDesc
	case SortAsc:
		f.Direction = SortAsc
	default:
		return domain.NewValidationError("direction", "must be ASC or DESC")
	}

	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}

// ReviewUpdate is a partial update. Nil fields are left untouched.
type ReviewUpdate struct {
	// Status moves the record forward in its lifecycle.
	Status *domain.ReviewStatus

	// Analysis writes the derived fields and the trace. Allowed once per record.
	Analysis *domain.AnalysisTrace

	// PostedAt stamps publication time.
	PostedAt *time.Time
}

// Empty reports whether the update sets nothing besides updated_at.
func (u ReviewUpdate) Empty() bool {
	return u.Status == nil && u.Analysis == nil && u.PostedAt == nil
}

// StatusUpdate is shorthand for an update that only changes status.
func StatusUpdate(status domain.ReviewStatus) ReviewUpdate {
	return ReviewUpdate{Status: &status}
}
