package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talgya/villagers/internal/config"
)

// RateLimiter grants each client a fixed allowance of requests per window,
// keyed by IP. Only player action endpoints go through it; those spend
// daily-capped resources, so a coarse fixed window is enough and the
// bookkeeping stays a mutex-guarded map.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*allowance

	limit  int
	window time.Duration
	now    func() time.Time // replaced in tests
}

type allowance struct {
	remaining   int
	windowStart time.Time
}

// NewRateLimiter builds a limiter from the API section of the config and
// starts a background sweep that drops idle clients.
func NewRateLimiter(cfg config.APIConfig) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*allowance),
		limit:   cfg.ActionRateLimit,
		window:  time.Duration(cfg.ActionRateWindowSecs * float64(time.Second)),
		now:     time.Now,
	}
	go func() {
		for range time.Tick(time.Hour) {
			rl.sweep()
		}
	}()
	return rl
}

// Allow spends one request from the client's allowance. A client whose
// window has elapsed starts a fresh one.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	a, ok := rl.clients[client]
	if !ok || now.Sub(a.windowStart) >= rl.window {
		rl.clients[client] = &allowance{remaining: rl.limit - 1, windowStart: now}
		return true
	}
	if a.remaining <= 0 {
		return false
	}
	a.remaining--
	return true
}

// RetryAfter reports whole seconds until the client's window resets,
// rounded up. Zero for unknown clients.
func (rl *RateLimiter) RetryAfter(client string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	a, ok := rl.clients[client]
	if !ok {
		return 0
	}
	left := rl.window - rl.now().Sub(a.windowStart)
	if left <= 0 {
		return 0
	}
	return int(left.Seconds()) + 1
}

// sweep drops clients whose window expired long enough ago that keeping the
// entry buys nothing.
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for client, a := range rl.clients {
		if now.Sub(a.windowStart) > 2*rl.window {
			delete(rl.clients, client)
		}
	}
}

// clientKey resolves the address the limiter buckets by. A proxied request
// carries the real client in X-Forwarded-For; otherwise the peer address
// minus its port.
func clientKey(r *http.Request) string {
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

// RateLimitMiddleware rejects over-allowance requests with 429 and a
// Retry-After header.
func RateLimitMiddleware(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !rl.Allow(key) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter(key)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
