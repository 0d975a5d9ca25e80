// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the per-caller token-bucket limiter that protects the
// submission endpoints from bursty clients. Buckets live in process memory
// keyed by user id (falling back to client IP), refill at a configured rate,
// and are swept opportunistically so the map stays bounded. Idempotent
// replays bypass the limiter entirely: retrying a completed submission must
// never be punished.
//
// The limiter is process-local. A horizontally scaled deployment that needs
// a global budget should put a shared limiter (e.g., Redis) in front instead.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to the identity whose bucket it draws from.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by the authenticated user when present and by
// client IP otherwise. Keys are namespaced so a user named like an IP cannot
// collide with an address.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// bucket pairs a limiter with its last-use timestamp for idle eviction.
type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a token-bucket budget per identity. Safe for
// concurrent use; construct with NewRateLimiter.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups uint64

	// idleTTL is how long an untouched bucket survives before the sweep
	// drops it.
	idleTTL time.Duration
}

// sweepEvery is the lookup count between opportunistic idle sweeps.
const sweepEvery = 5000

// NewRateLimiter builds a limiter replenishing rps tokens per second with
// the given burst capacity. A burst below 1 is coerced to 1; an rps of 0
// admits only the initial burst per identity.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
		idleTTL: 10 * time.Minute,
	}
}

// getBucket fetches or creates the limiter for key, sweeping idle entries
// first every sweepEvery lookups. Sweeping before the fetch lets a stale
// bucket for the requested key be evicted rather than refreshed.
func (rl *RateLimiter) getBucket(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.lim
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.buckets[key] = &bucket{lim: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator flagged this request as
// a replay of a completed submission, which is served without drawing a
// token.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the Gin middleware enforcing the budget. Denied requests
// get a 429 with the standard error envelope and a Retry-After hint.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		if rl.getBucket(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		retry := 1
		if rl.rps > 0 && rl.rps < 1 {
			retry = int(1 / float64(rl.rps))
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
