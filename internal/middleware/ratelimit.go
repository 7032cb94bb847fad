// ABOUTME: Token-bucket rate limiting, one bucket per (connection or
// ABOUTME: configured) key. Buckets refill lazily on access, no background goroutine.
package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/2389/mcp-gateway/internal/frame"
)

// bucket is a single token bucket. lastFill is the time of the last token
// computation; tokens accrue lazily so idle keys cost nothing.
type bucket struct {
	mu       sync.Mutex
	tokens   float64
	lastFill time.Time
}

// Limiter is a concurrency-safe, per-key token bucket rate limiter.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens added per second
	burst   float64 // bucket capacity

	now func() time.Time
}

// NewLimiter creates a Limiter refilling at ratePerSecond tokens/sec up to a
// burst-sized bucket.
func NewLimiter(ratePerSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    ratePerSecond,
		burst:   float64(burst),
		now:     time.Now,
	}
}

// Allow reports whether a request for key may proceed, consuming one token
// if so.
func (l *Limiter) Allow(key string) bool {
	b := l.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens = min(l.burst, b.tokens+elapsed*l.rate)
	b.lastFill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *Limiter) bucketFor(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastFill: l.now()}
		l.buckets[key] = b
	}
	return b
}

// RateLimit rejects requests once a key's bucket is exhausted. Tokens refill
// at the Limiter's configured rate; burst equals its bucket size.
func RateLimit(limiter *Limiter) Middleware {
	return func(ctx context.Context, req *Request, next Next) *frame.Response {
		key := req.RateLimitKey
		if key == "" {
			key = req.ConnectionID
		}
		if !limiter.Allow(key) {
			return frame.NewErrorResponse(req.Msg.ID, frame.CodeBackpressure, frame.CanonicalMessage(frame.CodeBackpressure), map[string]string{"reason": "rate limit exceeded"})
		}
		return next(ctx, req)
	}
}
