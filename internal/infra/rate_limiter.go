package infra

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter.
// Thread-safe and suitable for concurrent API calls.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter.
// maxRequests: maximum burst size
// perSecond: refill rate (requests per second)
func NewRateLimiter(maxRequests int, perSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(maxRequests),
		maxTokens:  float64(maxRequests),
		refillRate: perSecond,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
// Returns immediately if a token is available.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		waitTime := time.Duration(float64(time.Second) / r.refillRate)
		r.mu.Unlock()

		t := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// TryAcquire attempts to acquire a token without blocking.
// Returns true if a token was acquired, false otherwise.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// refill adds tokens based on elapsed time.
// Must be called with mutex held.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate

	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	r.lastRefill = now
}

// Pre-configured limiters. The venue chain endpoints tolerate roughly
// 10 req/s per client; the aggregated reference source is stingier.
var (
	venueRestLimiter *RateLimiter
	oracleLimiter    *RateLimiter
	rateLimiterOnce  sync.Once
)

// GetVenueRestLimiter returns the shared limiter for venue REST calls.
func GetVenueRestLimiter() *RateLimiter {
	rateLimiterOnce.Do(initLimiters)
	return venueRestLimiter
}

// GetOracleLimiter returns the shared limiter for reference price lookups.
func GetOracleLimiter() *RateLimiter {
	rateLimiterOnce.Do(initLimiters)
	return oracleLimiter
}

func initLimiters() {
	venueRestLimiter = NewRateLimiter(5, 10) // 10 req/s, burst 5
	oracleLimiter = NewRateLimiter(1, 2)     // 2 req/s, no burst
}
