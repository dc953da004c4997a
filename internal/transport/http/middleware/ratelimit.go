package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	sweepEvery = 5 * time.Minute
	idleAfter  = 10 * time.Minute
)

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. Idle buckets are swept.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	every   rate.Limit
	burst   int
	clock   clockwork.Clock
}

// NewRateLimiter allows r requests/second per IP with bursts up to burst.
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	return newRateLimiter(r, burst, clockwork.NewRealClock())
}

func newRateLimiter(r rate.Limit, burst int, clock clockwork.Clock) *RateLimiter {
	rl := &RateLimiter{clients: make(map[string]*client), every: r, burst: burst, clock: clock}
	go func() {
		for range clock.NewTicker(sweepEvery).Chan() {
			rl.sweep()
		}
	}()
	return rl
}

// reserve takes a token for ip. When none is available it returns how long
// until one is.
func (rl *RateLimiter) reserve(ip string) (bool, time.Duration) {
	now := rl.clock.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	c, ok := rl.clients[ip]
	if !ok {
		c = &client{bucket: rate.NewLimiter(rl.every, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now
	res := c.bucket.ReserveN(now, 1)
	if !res.OK() {
		return false, 0
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

func (rl *RateLimiter) sweep() {
	now := rl.clock.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, c := range rl.clients {
		if now.Sub(c.lastSeen) > idleAfter {
			delete(rl.clients, ip)
		}
	}
}

// Limit rejects requests over the per-IP budget with 429 and a Retry-After hint.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.reserve(realIP(r))
		if !ok {
			if wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			}
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// realIP prefers the first X-Forwarded-For hop, then X-Real-Ip, then the
// connection address without its port.
func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
