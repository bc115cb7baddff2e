// Package publisher posts approved replies back to the review platform.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/review-reply-service/internal/domain"
	"github.com/helixir/review-reply-service/internal/httpclient"
	"github.com/helixir/review-reply-service/internal/observability"
)

// Publisher posts a reply to a review. Success is binary: there is no partial result.
type Publisher interface {
	PostReply(ctx context.Context, reviewID, text string) (bool, error)
}

const (
	// DefaultBaseURL is the Google Business Profile API root.
	DefaultBaseURL = "https://mybusiness.googleapis.com/v4"
	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	googleName = "google_business"
)

// Config holds Google Business Profile settings.
type Config struct {
	BaseURL     string
	AccountID   string
	LocationID  string
	AccessToken string
	Timeout     time.Duration
	RateLimit   float64
}

// Configured reports whether real publication is possible.
func (c Config) Configured() bool {
	return c.AccessToken != "" && c.AccountID != "" && c.LocationID != ""
}

// New returns the Google publisher when configured and a log-only publisher otherwise.
func New(cfg Config, metrics *observability.Metrics, logger zerolog.Logger) Publisher {
	if !cfg.Configured() {
		logger.Warn().Str("component", "publisher").Msg("Google Business Profile credentials missing; replies will only be logged")
		return NewLogOnly(logger)
	}
	return NewGoogle(cfg, metrics, logger)
}

// Google publishes replies through the Google Business Profile reviews API.
type Google struct {
	config     Config
	httpClient *httpclient.Client
	logger     zerolog.Logger
}

// Ensure Google implements Publisher.
var _ Publisher = (*Google)(nil)

// NewGoogle creates a Google Business Profile publisher.
func NewGoogle(cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Google {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Google{
		config: cfg,
		httpClient: httpclient.New(httpclient.Config{
			Name:        googleName,
			Timeout:     cfg.Timeout,
			RateLimit:   cfg.RateLimit,
			BurstSize:   1,
			MaxRetries:  2,
			BearerToken: cfg.AccessToken,
		}, metrics, logger),
		logger: logger.With().Str("component", "publisher").Str("platform", googleName).Logger(),
	}
}

// PostReply creates or replaces the owner reply on a review.
func (g *Google) PostReply(ctx context.Context, reviewID, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, domain.NewValidationError("reply", "reply text is empty")
	}

	body, err := json.Marshal(map[string]string{"comment": text})
	if err != nil {
		return false, fmt.Errorf("encoding reply: %w", err)
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/locations/%s/reviews/%s/reply",
		g.config.BaseURL,
		url.PathEscape(g.config.AccountID),
		url.PathEscape(g.config.LocationID),
		url.PathEscape(reviewID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false, domain.NewExternalAPIError(googleName, 0, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return false, domain.NewExternalAPIError(googleName, resp.StatusCode, strings.TrimSpace(string(msg)), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	g.logger.Info().Str("review_id", reviewID).Msg("reply published")
	return true, nil
}

// LogOnly records the reply without contacting the platform. It always succeeds.
type LogOnly struct {
	logger zerolog.Logger
}

// Ensure LogOnly implements Publisher.
var _ Publisher = (*LogOnly)(nil)

// NewLogOnly creates a log-only publisher.
func NewLogOnly(logger zerolog.Logger) *LogOnly {
	return &LogOnly{logger: logger.With().Str("component", "publisher").Str("platform", "log_only").Logger()}
}

// PostReply logs the reply and reports success.
func (p *LogOnly) PostReply(_ context.Context, reviewID, text string) (bool, error) {
	p.logger.Info().Str("review_id", reviewID).Str("reply", text).Msg("reply not published: running without platform credentials")
	return true, nil
}
