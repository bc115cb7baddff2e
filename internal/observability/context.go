package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	cycleIDKey   contextKey = "cycle_id"
	reviewIDKey  contextKey = "review_id"
)

// WithRequestID adds an HTTP request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithCycleID adds a scheduler cycle ID to the context.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleIDKey, cycleID)
}

// CycleIDFromContext retrieves the cycle ID from context.
func CycleIDFromContext(ctx context.Context) string {
	return stringValue(ctx, cycleIDKey)
}

// WithReviewID adds a review ID to the context.
func WithReviewID(ctx context.Context, reviewID string) context.Context {
	return context.WithValue(ctx, reviewIDKey, reviewID)
}

// ReviewIDFromContext retrieves the review ID from context.
func ReviewIDFromContext(ctx context.Context) string {
	return stringValue(ctx, reviewIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v := ctx.Value(key); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
