package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/helixir/review-reply-service/internal/domain"
	"github.com/helixir/review-reply-service/internal/httpclient"
	"github.com/helixir/review-reply-service/internal/observability"
)

const (
	// DefaultBaseURL is the DataForSEO API base URL.
	DefaultBaseURL = "https://api.dataforseo.com"

	// DefaultLocationCode is the DataForSEO code for the United States.
	DefaultLocationCode = 2840

	// DefaultDepth is the number of reviews requested per fetch.
	DefaultDepth = 10

	// DefaultTimeout is the default request timeout. Live endpoints are slow.
	DefaultTimeout = 120 * time.Second

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 2.0

	// DefaultCacheTTL is how long discovery results are cached.
	DefaultCacheTTL = 15 * time.Minute

	reviewsPath  = "/v3/business_data/google/reviews/live"
	listingsPath = "/v3/business_data/business_listings/search/live"

	sourceName = "dataforseo"
)

// Config holds configuration for the DataForSEO client.
type Config struct {
	// BaseURL defaults to https://api.dataforseo.com.
	BaseURL string
	// Login and Password are the API credentials.
	Login    string
	Password string
	// LanguageCode is the review language requested (default "en").
	LanguageCode string
	// LocationCode defaults to 2840.
	LocationCode int
	// Depth is the number of reviews per fetch (default 10).
	Depth int
	// Timeout is the request timeout.
	Timeout time.Duration
	// RateLimit is the maximum requests per second.
	RateLimit float64
	// CacheTTL is how long discovery results are kept.
	CacheTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.LanguageCode == "" {
		c.LanguageCode = "en"
	}
	if c.LocationCode == 0 {
		c.LocationCode = DefaultLocationCode
	}
	if c.Depth <= 0 {
		c.Depth = DefaultDepth
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
}

// DataForSEO implements Fetcher against the DataForSEO business data API.
type DataForSEO struct {
	config     Config
	httpClient *httpclient.Client
	cache      *cache.Cache
	logger     zerolog.Logger
}

// Ensure DataForSEO implements Fetcher.
var _ Fetcher = (*DataForSEO)(nil)

// NewDataForSEO creates a client. Missing credentials are a ConfigurationError.
func NewDataForSEO(cfg Config, metrics *observability.Metrics, logger zerolog.Logger) (*DataForSEO, error) {
	if cfg.Login == "" || cfg.Password == "" {
		return nil, domain.NewConfigurationError("REVIEWREPLY_FETCHER_LOGIN", "DataForSEO login and password are required")
	}
	cfg.applyDefaults()

	httpClient := httpclient.New(httpclient.Config{
		Name:              sourceName,
		Timeout:           cfg.Timeout,
		RateLimit:         cfg.RateLimit,
		BurstSize:         1,
		BasicAuthUser:     cfg.Login,
		BasicAuthPassword: cfg.Password,
	}, metrics, logger)

	return &DataForSEO{
		config:     cfg,
		httpClient: httpClient,
		cache:      cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger:     logger.With().Str("component", "fetcher").Str("source", sourceName).Logger(),
	}, nil
}

// FetchReviews returns the latest reviews of the business identified by its Google CID.
func (c *DataForSEO) FetchReviews(ctx context.Context, businessID string) ([]domain.RawReview, error) {
	if strings.TrimSpace(businessID) == "" {
		return nil, domain.NewValidationError("business_id", "is required")
	}

	results, err := c.post(ctx, reviewsPath, []reviewsPayload{{
		CID:          businessID,
		LanguageCode: c.config.LanguageCode,
		LocationCode: c.config.LocationCode,
		Depth:        c.config.Depth,
		SortBy:       "newest",
	}})
	if err != nil {
		return nil, err
	}

	var reviews []domain.RawReview
	for _, raw := range results {
		var res reviewsResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, fmt.Errorf("decoding reviews result: %w", err)
		}
		for _, item := range res.Items {
			reviews = append(reviews, domain.RawReview{
				ID:              item.id(),
				AuthorName:      item.author(),
				Rating:          item.rating(),
				Text:            item.ReviewText,
				OwnerReply:      item.OwnerAnswer,
				ProfileURL:      item.ProfileURL,
				Metadata:        item.metadata(),
				SourceTimestamp: item.timestamp(),
			})
		}
	}

	c.logger.Debug().
		Str("business_id", businessID).
		Int("count", len(reviews)).
		Msg("reviews fetched")

	return reviews, nil
}

// SearchBusinesses looks up businesses by name. Results are cached per query.
func (c *DataForSEO) SearchBusinesses(ctx context.Context, query string) ([]domain.BusinessCandidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewValidationError("query", "is required")
	}

	key := strings.ToLower(query)
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]domain.BusinessCandidate), nil
	}

	results, err := c.post(ctx, listingsPath, []listingsPayload{{
		Title:        query,
		LocationCode: c.config.LocationCode,
		Limit:        20,
	}})
	if err != nil {
		return nil, err
	}

	candidates := []domain.BusinessCandidate{}
	for _, raw := range results {
		var res listingsResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, fmt.Errorf("decoding listings result: %w", err)
		}
		for _, item := range res.Items {
			if item.CID == "" {
				continue
			}
			cand := domain.BusinessCandidate{
				BusinessID:   item.CID,
				BusinessName: item.Title,
				Address:      item.Address,
			}
			if item.Rating != nil {
				cand.Rating = item.Rating.Value
				cand.ReviewCount = item.Rating.VotesCount
			}
			candidates = append(candidates, cand)
		}
	}

	c.cache.SetDefault(key, candidates)
	return candidates, nil
}

// post sends a task array and returns the result arrays of all successful tasks.
func (c *DataForSEO) post(ctx context.Context, path string, payload any) ([]json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewExternalAPIError(sourceName, 0, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(msg), nil)
	}

	var envelope apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if envelope.StatusCode != statusOK {
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode,
			fmt.Sprintf("status %d: %s", envelope.StatusCode, envelope.StatusMessage), nil)
	}

	var results []json.RawMessage
	for _, task := range envelope.Tasks {
		if task.StatusCode != statusOK {
			c.logger.Warn().
				Str("task_id", task.ID).
				Int("status_code", task.StatusCode).
				Str("status_message", task.StatusMessage).
				Msg("task failed")
			continue
		}
		results = append(results, task.Result...)
	}
	return results, nil
}
