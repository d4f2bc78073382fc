// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory, per-identity token-bucket rate limiter
// on golang.org/x/time/rate with opportunistic eviction of idle buckets.
// The router installs two: a general one for every route and a stricter one
// in front of the transcription routes, where each request costs engine
// time. Replays flagged by IdempotencyValidator skip limiting.
//
// Limits are process-local; several replicas each enforce their own.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to its bucket, e.g. "user:<id>" or "ip:<addr>".
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys by authenticated user when known, else by client IP.
// On globally mounted limiters auth has not run yet, so they key by IP.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid, ok := UserID(c); ok {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// visitor is one bucket plus its last use, for eviction.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter. Buckets are created on
// demand and evicted after ttl of inactivity. Safe for concurrent use.
type RateLimiter struct {
	name     string
	message  string
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter builds a limiter refilling rps tokens per second up to
// burst (coerced to at least 1). rps 0 allows only the initial burst.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		name:     "default",
		message:  "rate limit exceeded",
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// Named labels the limiter in logs and sets the 429 message.
func (rl *RateLimiter) Named(name, message string) *RateLimiter {
	rl.name = name
	if message != "" {
		rl.message = message
	}
	return rl
}

// getVisitor returns the bucket for key, creating it if absent. Every 5000
// lookups it first sweeps idle buckets, so a stale bucket is dropped even
// when it is the one being fetched.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		lim := v.limiter
		rl.mu.Unlock()
		return lim
	}

	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	rl.mu.Unlock()
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request for
// rate-limit bypass (i.e., it is a replay of a previously completed request).
//
// When true, Handler() will skip limiting so replays are served without
// consuming tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass) // set by IdempotencyValidator
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the limiting middleware.
//
// A denied request gets 429 with Retry-After set to the whole seconds until
// the next token, and the standard error envelope:
//
//	{ "request_id": "<uuid>", "code": "rate_limited", "message": "rate limit exceeded" }
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		key := rl.keyFn(c)
		res := rl.getVisitor(key).Reserve()
		if res.OK() && res.Delay() == 0 {
			c.Next()
			return
		}
		retry := retryAfterSeconds(res)
		res.Cancel()

		LoggerFrom(c).Warn().Str("limiter", rl.name).Int("retry_after", retry).Msg("rate limited")
		c.Header("Retry-After", strconv.Itoa(retry))
		abortJSON(c, http.StatusTooManyRequests, "rate_limited", rl.message)
	}
}

// retryAfterSeconds rounds the reservation delay up to whole seconds, with
// a one-minute answer for buckets that never refill.
func retryAfterSeconds(res *rate.Reservation) int {
	if !res.OK() {
		return 60
	}
	secs := int(math.Ceil(res.Delay().Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
