package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-reply-service/internal/observability"
)

func fastClient(cfg Config) *Client {
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1000
		cfg.BurstSize = 100
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 5 * time.Millisecond
	}
	return New(cfg, nil, zerolog.Nop())
}

func TestNew(t *testing.T) {
	t.Run("applies default values", func(t *testing.T) {
		client := New(Config{}, nil, zerolog.Nop())

		require.NotNil(t, client)
		assert.Equal(t, 30*time.Second, client.client.Timeout)
		assert.Equal(t, "Helixir-ReviewReplyService/1.0", client.config.UserAgent)
		assert.Equal(t, 3, client.config.MaxRetries)
		assert.Equal(t, time.Second, client.config.RetryDelay)
		assert.Equal(t, "http", client.Name())
	})

	t.Run("negative retries disables retrying", func(t *testing.T) {
		client := New(Config{MaxRetries: -1}, nil, zerolog.Nop())
		assert.Equal(t, 0, client.config.MaxRetries)
	})
}

func TestClient_Do(t *testing.T) {
	t.Run("sets user agent and basic auth", func(t *testing.T) {
		var user, pass, ua string
		var ok bool
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok = r.BasicAuth()
			ua = r.Header.Get("User-Agent")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := fastClient(Config{UserAgent: "TestAgent/2.0", BasicAuthUser: "login", BasicAuthPassword: "secret"})
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.True(t, ok)
		assert.Equal(t, "login", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "TestAgent/2.0", ua)
	})

	t.Run("sets bearer token", func(t *testing.T) {
		var auth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
		}))
		defer server.Close()

		client := fastClient(Config{BearerToken: "tok"})
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "Bearer tok", auth)
	})

	t.Run("retries 503 and resends body", func(t *testing.T) {
		var calls atomic.Int32
		var lastBody string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			lastBody = string(b)
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := fastClient(Config{MaxRetries: 3})
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, strings.NewReader(`[{"depth":10}]`))
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, int32(3), calls.Load())
		assert.Equal(t, `[{"depth":10}]`, lastBody)
	})

	t.Run("does not retry 4xx", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := fastClient(Config{MaxRetries: 3})
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("exhausted retries return typed error and record metrics", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		metrics := observability.NewMetrics("test_httpclient_exhausted")
		client := New(Config{Name: "dataforseo", MaxRetries: 1, RetryDelay: time.Millisecond, RateLimit: 1000, BurstSize: 10}, metrics, zerolog.Nop())
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+"/v3/x", nil)
		_, err := client.Do(req)
		require.Error(t, err)

		var exhausted *RetryExhaustedError
		require.True(t, errors.As(err, &exhausted))
		assert.Equal(t, 2, exhausted.Attempts)
		assert.Equal(t, http.StatusTooManyRequests, exhausted.StatusCode)

		assert.Equal(t, float64(2), testutil.ToFloat64(metrics.ExternalRateLimited.WithLabelValues("dataforseo")))
		assert.Equal(t, 250.0, client.rateLimiter.Rate(), "two 429s quarter the rate")
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ExternalRequestsFailed.WithLabelValues("dataforseo", "/v3/x", "status_429")))
	})

	t.Run("context cancellation during backoff", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := fastClient(Config{MaxRetries: 3, RetryDelay: time.Second})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		_, err := client.Do(req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestClient_getRetryDelay(t *testing.T) {
	client := fastClient(Config{RetryDelay: 2 * time.Second})

	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{name: "no header", header: "", want: 2 * time.Second},
		{name: "seconds", header: "3", want: 3 * time.Second},
		{name: "zero seconds", header: "0", want: 2 * time.Second},
		{name: "garbage", header: "soon", want: 2 * time.Second},
		{name: "past http date", header: "Mon, 02 Jan 2006 15:04:05 GMT", want: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.header != "" {
				resp.Header.Set("Retry-After", tt.header)
			}
			assert.Equal(t, tt.want, client.getRetryDelay(resp))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, 2)
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	rl.SetRate(8)
	assert.Equal(t, 4.0, rl.Throttle())
	assert.Equal(t, 2.0, rl.Throttle())
	assert.Equal(t, 1.0, rl.Throttle())
	assert.Equal(t, 1.0, rl.Throttle(), "floor is an eighth of the configured rate")

	rl.Recover()
	assert.Equal(t, 1.25, rl.Rate())
	for range 20 {
		rl.Recover()
	}
	assert.Equal(t, 8.0, rl.Rate())

	rl.SetRate(0.5)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx))
}
