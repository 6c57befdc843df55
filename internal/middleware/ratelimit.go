package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"sitestats/internal/clientip"
	"sitestats/pkg/errors"
	"sitestats/pkg/logger"
)

const (
	rateLimiterCacheSize = 10000
	rateLimiterIdleTTL   = 10 * time.Minute
)

// RateLimiter hands out one token bucket per client identity. Idle buckets
// expire from a bounded LRU so the map cannot grow without limit.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rps      rate.Limit
	burst    int
	logger   *logger.Logger
}

// NewRateLimiter creates a per-client limiter allowing rps requests per second with the given burst
func NewRateLimiter(rps float64, burst int, log *logger.Logger) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](rateLimiterCacheSize, nil, rateLimiterIdleTTL),
		rps:      rate.Limit(rps),
		burst:    burst,
		logger:   log.Named("ratelimit"),
	}
}

// Allow reports whether a request from key may proceed
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// limiter returns the bucket for key, creating it on first use
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters.Add(key, limiter)
	}
	return limiter
}

// Middleware rejects clients over their budget with 429. A non-positive rate disables limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl.rps <= 0 {
		return next
	}

	retryAfter := strconv.Itoa(int(math.Ceil(1 / float64(rl.rps))))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientip.FromRequest(r)
		if !rl.Allow(client) {
			rl.logger.WithField("client_id", client).Debug("Rate limit exceeded")
			w.Header().Set("Retry-After", retryAfter)
			WriteError(w, r, errors.NewRateLimitError("Too many requests"), rl.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}
