package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is an in-process token bucket per client. It suits a single instance;
// use RedisRateLimiter when several replicas share a budget.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	idle   time.Duration
	now    func() time.Time
	mu     sync.Mutex
	active map[string]*client
}

type client struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows about `limit` requests per `window` per client, with bursts up to `limit`.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:  rate.Limit(float64(limit) / window.Seconds()),
		burst:  limit,
		idle:   3 * window,
		now:    time.Now,
		active: map[string]*client{},
	}
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientKey(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Allow consumes one token for key.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	c := rl.active[key]
	if c == nil {
		c = &client{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.active[key] = c
	}
	c.lastSeen = now
	rl.mu.Unlock()

	return c.lim.AllowN(now, 1)
}

// Sweep drops clients idle longer than three windows. Returns how many were removed.
func (rl *RateLimiter) Sweep() int {
	cutoff := rl.now().Add(-rl.idle)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for k, c := range rl.active {
		if c.lastSeen.Before(cutoff) {
			delete(rl.active, k)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) retryAfterSeconds() int {
	if rl.limit <= 0 {
		return 1
	}
	secs := int(1/float64(rl.limit) + 0.999)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func clientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
