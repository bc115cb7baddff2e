package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError represents an error returned by an LLM provider API.
type APIError struct {
	// Provider is the name of the LLM provider (e.g., "openai", "anthropic").
	Provider string
	// StatusCode is the HTTP status code returned by the API.
	StatusCode int
	// Message is the error message from the API.
	Message string
	// Type is the error type classification from the API.
	Type string
	// Code is the provider-specific error code (if available).
	Code string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient returns true if the error is a transient error that may succeed
// on retry. This includes rate limiting (429), server errors (5xx), and network
// errors (StatusCode 0 indicates no HTTP response was received).
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// ErrorType returns a short label for metrics.
func ErrorType(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == 0:
			return "network"
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return "rate_limit"
		case apiErr.StatusCode >= 500:
			return "server_error"
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return "auth"
		default:
			return "client_error"
		}
	default:
		return "invalid_response"
	}
}

// isTransientError reports whether err is an APIError eligible for retry.
func isTransientError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient()
	}
	return false
}

// networkError wraps a transport failure as a transient APIError.
func networkError(provider string, err error) *APIError {
	return &APIError{
		Provider:   provider,
		StatusCode: 0,
		Message:    fmt.Sprintf("request failed: %v", err),
		Type:       "network_error",
	}
}

// retry calls fn until it succeeds, returns a non-transient error, or maxRetries
// retries have been spent. Delays double from baseDelay and honour ctx.
func retry[T any](ctx context.Context, provider string, maxRetries int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("%s: context cancelled during retry: %w", provider, ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: %w", provider, ctx.Err())
		}
		if !isTransientError(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, fmt.Errorf("%s: all %d retries exhausted: %w", provider, maxRetries, lastErr)
}
