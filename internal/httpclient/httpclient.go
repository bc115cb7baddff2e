// Package httpclient provides the rate-limited, retrying HTTP client shared by the
// review source, messaging and publishing integrations.
package httpclient

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/review-reply-service/internal/observability"
)

// Config configures a Client.
type Config struct {
	Name       string // labels metrics, e.g. "dataforseo" or "twilio"
	Timeout    time.Duration
	RateLimit  float64 // requests per second
	BurstSize  int
	MaxRetries int
	RetryDelay time.Duration // used when the server sends no Retry-After
	UserAgent  string

	// BasicAuthUser enables HTTP basic auth; BearerToken sets a bearer Authorization header.
	BasicAuthUser     string
	BasicAuthPassword string
	BearerToken       string
}

// Client wraps http.Client with rate limiting, retries, authentication and metrics.
// It is safe for concurrent use.
type Client struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      Config
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// New creates a Client. Zero fields take defaults: 30s timeout, 5 req/s with a
// burst of 5, 3 retries 1s apart. Negative MaxRetries disables retrying.
func New(cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Client {
	cfg.Name = cmp.Or(cfg.Name, "http")
	cfg.UserAgent = cmp.Or(cfg.UserAgent, "Helixir-ReviewReplyService/1.0")
	cfg.Timeout = cmp.Or(cfg.Timeout, 30*time.Second)
	cfg.RetryDelay = cmp.Or(cfg.RetryDelay, time.Second)
	cfg.RateLimit = cmp.Or(cfg.RateLimit, 5)
	cfg.BurstSize = cmp.Or(cfg.BurstSize, 5)
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = 3
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}

	return &Client{
		client:      &http.Client{Timeout: cfg.Timeout},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
		metrics:     metrics,
		logger:      logger,
	}
}

// Name returns the client name used for metrics labels.
func (c *Client) Name() string {
	return c.config.Name
}

// Do sends req, waiting on the rate limiter before every attempt. Network errors,
// 429 and 5xx responses are retried; a 429 also throttles the limiter. Any other
// response is returned to the caller, who must close its body.
//
// Requests with a body must have GetBody set (http.NewRequest does this for
// bytes and strings readers) for the body to be resent on retry.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.decorate(req)
	ctx := req.Context()
	endpoint := req.URL.Path
	start := time.Now()

	for attempt := 1; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		var (
			delay   = c.config.RetryDelay
			failure string
			lastErr error
		)
		resp, err := c.client.Do(req)
		switch {
		case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
			c.recordFailure(endpoint, "timeout")
			return nil, err
		case err != nil:
			failure, lastErr = "network", fmt.Errorf("request failed: %w", err)
		case retryable(resp.StatusCode):
			if resp.StatusCode == http.StatusTooManyRequests {
				c.throttled()
			}
			delay = c.getRetryDelay(resp)
			drain(resp)
			failure = "status_" + strconv.Itoa(resp.StatusCode)
			lastErr = &RetryExhaustedError{Attempts: attempt, StatusCode: resp.StatusCode}
		default:
			c.rateLimiter.Recover()
			if c.metrics != nil {
				c.metrics.RecordExternalRequest(c.config.Name, endpoint, time.Since(start).Seconds())
			}
			return resp, nil
		}

		if attempt > c.config.MaxRetries {
			c.recordFailure(endpoint, failure)
			return nil, lastErr
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
		if err := rewind(req); err != nil {
			return nil, fmt.Errorf("cannot retry request: %w", err)
		}
	}
}

func (c *Client) decorate(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.BasicAuthUser != "" {
		req.SetBasicAuth(c.config.BasicAuthUser, c.config.BasicAuthPassword)
	}
	if c.config.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.BearerToken)
	}
}

func (c *Client) throttled() {
	next := c.rateLimiter.Throttle()
	if c.metrics != nil {
		c.metrics.RecordExternalRateLimited(c.config.Name)
	}
	c.logger.Warn().Str("client", c.config.Name).Float64("rate", next).Msg("rate limited, slowing down")
}

func (c *Client) recordFailure(endpoint, errorType string) {
	if c.metrics != nil {
		c.metrics.RecordExternalRequestFailed(c.config.Name, endpoint, errorType)
	}
}

// RetryExhaustedError is returned when every attempt ended in a retryable status.
type RetryExhaustedError struct {
	Attempts   int
	StatusCode int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("max retries exhausted after %d attempts, last status: %d", e.Attempts, e.StatusCode)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}

// getRetryDelay honours Retry-After in either delta-seconds or HTTP-date form.
func (c *Client) getRetryDelay(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return c.config.RetryDelay
}

func drain(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// rewind restores the request body so it can be sent again.
func rewind(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body
	return nil
}
