package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Each sweep holds sockets for every host it probes, so /api is throttled per
// caller: by API key when a configured one is presented, otherwise by client IP.

type tokenBucket struct {
	tokens float64
	last   time.Time
}

type limiter struct {
	rate  float64 // tokens per second
	burst float64

	mu      sync.Mutex
	buckets *cache.Cache // caller key -> *tokenBucket, dropped after ttl idle
}

func newLimiter(rps float64, burst int, ttl time.Duration) *limiter {
	if burst < 1 {
		burst = 1
	}
	return &limiter{
		rate:    rps,
		burst:   float64(burst),
		buckets: cache.New(ttl, ttl),
	}
}

// allow takes a token for key. When refused it also returns how long until
// the next token is available.
func (l *limiter) allow(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tb := &tokenBucket{tokens: l.burst, last: now}
	if v, ok := l.buckets.Get(key); ok {
		tb = v.(*tokenBucket)
	}
	tb.tokens = math.Min(l.burst, tb.tokens+now.Sub(tb.last).Seconds()*l.rate)
	tb.last = now
	l.buckets.SetDefault(key, tb)

	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}
	wait := time.Duration((1 - tb.tokens) / l.rate * float64(time.Second))
	return false, wait
}

// RateLimit returns a middleware allowing reqPerMin requests per caller with
// the given burst. Only keys listed in keys get their own bucket; anything
// else is counted against the client IP. reqPerMin <= 0 disables it.
func RateLimit(reqPerMin int, burst int, keys Keys) func(http.Handler) http.Handler {
	if reqPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newLimiter(float64(reqPerMin)/60.0, burst, 10*time.Minute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.allow(callerKey(r, keys), time.Now())
			if !ok {
				secs := int(math.Ceil(wait.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request, keys Keys) string {
	if k := readAuth(r); hasKey(k, keys.Public) || hasKey(k, keys.Admin) {
		return "key:" + k
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	// honor X-Forwarded-For if behind a proxy
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
