package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxRetryAfter caps the Retry-After hint sent with a 429.
const maxRetryAfter = 60 * time.Second

// KeyFunc maps a request to the identity whose bucket it draws from.
type KeyFunc func(*gin.Context) string

// KeyByCallerOrIP keys by the authenticated caller when BearerAuth ran and
// by client IP otherwise. The "caller:" and "ip:" prefixes keep the two
// namespaces apart and double as the rejection metric's label.
func KeyByCallerOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if caller := c.GetString(ctxKeyCaller); caller != "" {
			return "caller:" + caller
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter hands out one token bucket per key. Buckets idle for longer
// than idleTTL are swept at most once per idleTTL, on the request path.
// It is process-local abuse control for the internal API; the interactions
// webhook is never limited since a rejected interaction cannot be replayed.
type RateLimiter struct {
	every   rate.Limit
	burst   int
	key     KeyFunc
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter allows rps requests per second per key with bursts of up
// to burst (at least 1).
func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		every:   rate.Limit(rps),
		burst:   burst,
		key:     key,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// limiter returns the bucket for key, sweeping idle buckets first so a
// stale bucket is rebuilt rather than refreshed.
func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.every, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

// size reports the number of live buckets.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Handler rejects requests over their key's budget with 429, a Retry-After
// hint in whole seconds and the standard JSON error envelope.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := rl.now()
		key := rl.key(c)
		res := rl.limiter(key, now).ReserveN(now, 1)
		delay := res.DelayFrom(now)
		if res.OK() && delay == 0 {
			c.Next()
			return
		}
		// Give the token back; this request is not going to wait for it.
		res.CancelAt(now)

		kind, _, _ := strings.Cut(key, ":")
		httpRateLimited.WithLabelValues(kind).Inc()
		LoggerFrom(c).Warn().Str("key_kind", kind).Dur("retry_in", delay).Msg("rate limited")

		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(delay)))
		abortJSON(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
	}
}

// retryAfterSeconds rounds d up to whole seconds within [1, maxRetryAfter].
func retryAfterSeconds(d time.Duration) int {
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	if s := int(math.Ceil(d.Seconds())); s > 1 {
		return s
	}
	return 1
}
