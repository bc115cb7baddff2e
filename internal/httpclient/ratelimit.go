package httpclient

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// minRateFraction bounds how far Throttle can lower the rate.
const minRateFraction = 8

// RateLimiter is a token bucket that slows down when an API pushes back and
// recovers toward its configured rate afterwards. It is safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter

	mu      sync.Mutex
	ceiling float64
}

// NewRateLimiter creates a limiter allowing ratePerSecond sustained and burst at once.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		ceiling: ratePerSecond,
	}
}

// Wait blocks until a request is allowed or the context is canceled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// SetRate replaces both the current and the configured rate.
func (r *RateLimiter) SetRate(ratePerSecond float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ceiling = ratePerSecond
	r.limiter.SetLimit(rate.Limit(ratePerSecond))
}

// Rate returns the current sustained rate.
func (r *RateLimiter) Rate() float64 {
	return float64(r.limiter.Limit())
}

// Throttle halves the current rate, down to 1/8 of the configured rate.
func (r *RateLimiter) Throttle() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := max(r.Rate()/2, r.ceiling/minRateFraction)
	r.limiter.SetLimit(rate.Limit(next))
	return next
}

// Recover raises a throttled rate by a quarter, up to the configured rate.
func (r *RateLimiter) Recover() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur := r.Rate(); cur < r.ceiling {
		r.limiter.SetLimit(rate.Limit(min(cur*1.25, r.ceiling)))
	}
}
