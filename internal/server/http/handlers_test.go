package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/review-reply-service/internal/database"
	"github.com/helixir/review-reply-service/internal/domain"
	"github.com/helixir/review-reply-service/internal/repository/repotest"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type stubHealth struct {
	status database.HealthStatus
}

func (h stubHealth) Health(context.Context) database.HealthStatus { return h.status }

type stubFetcher struct {
	candidates []domain.BusinessCandidate
	err        error
	lastQuery  string
}

func (f *stubFetcher) FetchReviews(context.Context, string) ([]domain.RawReview, error) {
	return nil, nil
}

func (f *stubFetcher) SearchBusinesses(_ context.Context, q string) ([]domain.BusinessCandidate, error) {
	f.lastQuery = q
	return f.candidates, f.err
}

func newTestServer(repo *repotest.Reviews, f *stubFetcher, health HealthChecker) *Server {
	cfg := Config{Address: ":0", MetricsPath: "/metrics"}
	if f == nil {
		// a typed nil would not disable discovery
		return NewServer(cfg, repo, nil, health, zerolog.Nop())
	}
	return NewServer(cfg, repo, f, health, zerolog.Nop())
}

func serveHTTP(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func seededRepo(n int) *repotest.Reviews {
	repo := repotest.NewReviews()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		status := domain.StatusPendingApproval
		if i%2 == 1 {
			status = domain.StatusPosted
		}
		repo.Seed(&domain.Review{
			ReviewID:     fmt.Sprintf("r%02d", i),
			BusinessID:   "cid-1",
			AuthorName:   "Lan",
			Rating:       4,
			OriginalText: strings.Repeat("lovely ", 40),
			Status:       status,
			DraftReply:   "Thanks!",
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
		})
	}
	return repo
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	srv := newTestServer(repotest.NewReviews(), nil, nil)
	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name   string
		health HealthChecker
		want   int
	}{
		{"healthy", stubHealth{database.HealthStatus{Status: "healthy"}}, http.StatusOK},
		{"unhealthy", stubHealth{database.HealthStatus{Status: "unhealthy", Error: "refused"}}, http.StatusServiceUnavailable},
		{"no database", nil, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(repotest.NewReviews(), nil, tt.health)
			rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(repotest.NewReviews(), nil, nil)
	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Error("expected default Go collector output")
	}
}

// ---------------------------------------------------------------------------
// Reviews
// ---------------------------------------------------------------------------

func TestListReviews_FilterAndPaginate(t *testing.T) {
	srv := newTestServer(seededRepo(6), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reviews?status=pending_approval&page_size=2", nil)
	rr := serveHTTP(srv, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var page listReviewsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Reviews) != 2 {
		t.Fatalf("expected 2 reviews, got %d", len(page.Reviews))
	}
	if page.Reviews[0].ReviewID != "r04" || page.Reviews[1].ReviewID != "r02" {
		t.Errorf("expected newest pending first, got %s, %s", page.Reviews[0].ReviewID, page.Reviews[1].ReviewID)
	}
	if page.NextPageToken == "" {
		t.Fatal("expected a next page token")
	}
	if !strings.HasSuffix(page.Reviews[0].TextPreview, "…") {
		t.Error("expected long text to be truncated")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reviews?status=PENDING_APPROVAL&page_size=2&page_token="+url.QueryEscape(page.NextPageToken), nil)
	rr = serveHTTP(srv, req)
	var next listReviewsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &next); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(next.Reviews) != 1 || next.Reviews[0].ReviewID != "r00" {
		t.Errorf("unexpected second page: %+v", next.Reviews)
	}
	if next.NextPageToken != "" {
		t.Error("expected no further pages")
	}
}

func TestListReviews_InvalidParams(t *testing.T) {
	srv := newTestServer(seededRepo(1), nil, nil)

	for _, path := range []string{
		"/api/v1/reviews?status=archived",
		"/api/v1/reviews?direction=sideways",
	} {
		rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rr.Code)
		}
	}
}

func TestGetReview(t *testing.T) {
	srv := newTestServer(seededRepo(2), nil, nil)

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/reviews/r01", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got domain.Review
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ReviewID != "r01" || got.Status != domain.StatusPosted {
		t.Errorf("unexpected review: %+v", got)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	rr = serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/reviews/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestGetReview_InjectionPayloadsAreOpaque(t *testing.T) {
	srv := newTestServer(seededRepo(1), nil, nil)

	for _, payload := range []string{
		"'; DROP TABLE reviews; --",
		"1 OR 1=1",
		"' UNION SELECT * FROM approval_signals --",
	} {
		rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/reviews/"+url.PathEscape(payload), nil))
		if rr.Code != http.StatusNotFound && rr.Code != http.StatusBadRequest {
			t.Errorf("payload %q: expected 404 or 400, got %d", payload, rr.Code)
		}
	}
}

// ---------------------------------------------------------------------------
// Discovery
// ---------------------------------------------------------------------------

func TestSearchBusinesses(t *testing.T) {
	f := &stubFetcher{candidates: []domain.BusinessCandidate{{BusinessID: "cid-1", BusinessName: "Lotus Nails", Rating: 4.6}}}
	srv := newTestServer(repotest.NewReviews(), f, nil)

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/businesses?q=lotus+nails+austin", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp listBusinessesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Businesses) != 1 || resp.Businesses[0].BusinessID != "cid-1" {
		t.Errorf("unexpected businesses: %+v", resp.Businesses)
	}
	if f.lastQuery != "lotus nails austin" {
		t.Errorf("unexpected query forwarded: %q", f.lastQuery)
	}
}

func TestSearchBusinesses_Errors(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *stubFetcher
		query   string
		want    int
	}{
		{"discovery disabled", nil, "lotus", http.StatusServiceUnavailable},
		{"query too short", &stubFetcher{}, "a", http.StatusBadRequest},
		{"query too long", &stubFetcher{}, strings.Repeat("x", maxQueryLength+1), http.StatusBadRequest},
		{"upstream down", &stubFetcher{err: domain.NewExternalAPIError("dataforseo", 503, "down", nil)}, "lotus", http.StatusBadGateway},
		{"unexpected failure", &stubFetcher{err: errors.New("boom")}, "lotus", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(repotest.NewReviews(), tt.fetcher, nil)
			rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/businesses?q="+url.QueryEscape(tt.query), nil))
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestEncodeHTTPPageToken(t *testing.T) {
	if tok := encodeHTTPPageToken(0, 10, 9); tok != "" {
		t.Errorf("expected empty token for a short page, got %q", tok)
	}
	tok := encodeHTTPPageToken(10, 10, 10)
	req := httptest.NewRequest(http.MethodGet, "/?page_token="+url.QueryEscape(tok), nil)
	if _, offset := parsePaginationParams(req); offset != 20 {
		t.Errorf("expected offset 20, got %d", offset)
	}
}
