package httpserver

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/review-reply-service/internal/domain"
	"github.com/helixir/review-reply-service/internal/repository"
)

// Pagination and validation constants.
const (
	defaultPageSize = 50
	maxPageSize     = 100
	minQueryLength  = 2
	maxQueryLength  = 200
	maxIDLength     = 512
)

// listReviews handles GET /api/v1/reviews.
// Optional filters: status (repeatable or comma separated), business_id, direction.
func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit, offset := parsePaginationParams(r)
	filter := repository.ReviewFilter{
		BusinessID: q.Get("business_id"),
		Direction:  repository.SortDirection(q.Get("direction")),
		Limit:      limit,
		Offset:     offset,
	}

	for _, raw := range q["status"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			st, err := domain.ParseReviewStatus(part)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	reviews, err := s.reviews.Query(ctx, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summaries := make([]reviewSummaryResponse, len(reviews))
	for i, rv := range reviews {
		summaries[i] = domainReviewToSummary(rv)
	}

	writeJSON(w, http.StatusOK, listReviewsResponse{
		Reviews:       summaries,
		NextPageToken: encodeHTTPPageToken(offset, limit, len(reviews)),
	})
}

// getReview handles GET /api/v1/reviews/{reviewID}. The full record is
// returned, including the analysis trace.
func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	reviewID := strings.TrimSpace(chi.URLParam(r, "reviewID"))
	if reviewID == "" || len(reviewID) > maxIDLength {
		writeError(w, http.StatusBadRequest, "review_id is invalid")
		return
	}

	review, err := s.reviews.Get(r.Context(), reviewID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// searchBusinesses handles GET /api/v1/businesses?q=.
func (s *Server) searchBusinesses(w http.ResponseWriter, r *http.Request) {
	if s.fetcher == nil {
		writeError(w, http.StatusServiceUnavailable, "business discovery is not configured")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) < minQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("q must be at least %d characters", minQueryLength))
		return
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("q must be at most %d characters", maxQueryLength))
		return
	}

	candidates, err := s.fetcher.SearchBusinesses(r.Context(), query)
	if err != nil {
		s.logger.Warn().Err(err).Msg("business search failed")
		writeDomainError(w, err)
		return
	}

	out := make([]businessResponse, len(candidates))
	for i, c := range candidates {
		out[i] = domainCandidateToResponse(c)
	}
	writeJSON(w, http.StatusOK, listBusinessesResponse{Businesses: out})
}

// writeDomainError maps domain errors to appropriate HTTP status codes and
// writes a JSON error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrConfiguration):
		writeError(w, http.StatusServiceUnavailable, "service not configured")
	case errors.Is(err, domain.ErrTransient):
		writeError(w, http.StatusBadGateway, "upstream unavailable")
	case errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusConflict, "operation cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parsePaginationParams extracts page_size and page_token from query parameters.
// It applies default and maximum bounds to the page size.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if pageSizeStr := r.URL.Query().Get("page_size"); pageSizeStr != "" {
		if parsed, err := strconv.Atoi(pageSizeStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if pageToken := r.URL.Query().Get("page_token"); pageToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(pageToken)
		if err == nil {
			if parsed, parseErr := strconv.Atoi(string(decoded)); parseErr == nil && parsed > 0 {
				offset = parsed
			}
		}
	}

	return limit, offset
}

// encodeHTTPPageToken encodes the next offset as a base64 page token.
// A short page means there are no more results.
func encodeHTTPPageToken(offset, limit, returned int) string {
	if returned < limit {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(offset + limit)))
}
