// Package fetcher provides review source clients.
package fetcher

import (
	"context"

	"github.com/helixir/review-reply-service/internal/domain"
)

// Fetcher supplies raw reviews for a business and resolves businesses by query.
type Fetcher interface {
	// FetchReviews returns the most recent reviews of the business, newest first.
	// Raw reviews are returned as-is; callers validate them.
	FetchReviews(ctx context.Context, businessID string) ([]domain.RawReview, error)

	// SearchBusinesses returns candidate businesses matching a free-text query.
	SearchBusinesses(ctx context.Context, query string) ([]domain.BusinessCandidate, error)
}
