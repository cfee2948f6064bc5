package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/villagers/internal/config"
)

func testLimiter(limit int, windowSecs float64) (*RateLimiter, *time.Time) {
	rl := NewRateLimiter(config.APIConfig{
		ActionRateLimit:      limit,
		ActionRateWindowSecs: windowSecs,
	})
	fake := time.Unix(1750000000, 0)
	rl.now = func() time.Time { return fake }
	return rl, &fake
}

func TestAllowSpendsAllowancePerClient(t *testing.T) {
	rl, _ := testLimiter(3, 60)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"))

	// Other clients keep their own allowance.
	assert.True(t, rl.Allow("10.0.0.2"))

	assert.Positive(t, rl.RetryAfter("10.0.0.1"))
	assert.Zero(t, rl.RetryAfter("10.0.0.3"))
}

func TestAllowResetsAfterWindow(t *testing.T) {
	rl, fake := testLimiter(1, 60)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	*fake = fake.Add(61 * time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestLimiterHonorsConfiguredLimit(t *testing.T) {
	cfg := config.Default().API
	cfg.ActionRateLimit = 2
	rl := NewRateLimiter(cfg)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
}

func TestSweepDropsIdleClients(t *testing.T) {
	rl, fake := testLimiter(5, 60)

	rl.Allow("10.0.0.1")
	*fake = fake.Add(3 * time.Minute)
	rl.sweep()

	rl.mu.Lock()
	_, ok := rl.clients["10.0.0.1"]
	rl.mu.Unlock()
	assert.False(t, ok)
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/favor/x/accept", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	assert.Equal(t, "10.0.0.1", clientKey(r))

	r.RemoteAddr = "[::1]:5000"
	assert.Equal(t, "::1", clientKey(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientKey(r))
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := testLimiter(1, 60)
	handler := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/favor/x/accept", nil)
	req.RemoteAddr = "10.0.0.1:5000"

	rec := httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A forwarded client is keyed by its own address, not the proxy's.
	fwd := httptest.NewRequest(http.MethodPost, "/api/v1/favor/x/accept", nil)
	fwd.RemoteAddr = "10.0.0.1:5000"
	fwd.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec = httptest.NewRecorder()
	handler(rec, fwd)
	assert.Equal(t, http.StatusOK, rec.Code)
}
