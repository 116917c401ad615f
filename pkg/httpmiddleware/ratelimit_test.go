package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// newTestLimiter returns a limiter on a frozen clock.
func newTestLimiter(cfg RateLimitConfig) (*rateLimiter, *time.Time) {
	rl := newRateLimiter(cfg)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func hit(h http.Handler, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		if k != "" {
			req.Header.Set(k, v)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_WithinBurst(t *testing.T) {
	rl, _ := newTestLimiter(RateLimitConfig{RPS: 1, Burst: 5})
	h := rl.middleware()(okHandler())

	for i := range 5 {
		w := hit(h, "192.168.1.1:12345", nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(4-i), w.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_OverBurst(t *testing.T) {
	rl, _ := newTestLimiter(RateLimitConfig{RPS: 0.5, Burst: 2})
	h := rl.middleware()(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:9999", nil).Code)
	}

	w := hit(h, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_Refill(t *testing.T) {
	rl, now := newTestLimiter(RateLimitConfig{RPS: 1, Burst: 1})
	h := rl.middleware()(okHandler())

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1", nil).Code)

	*now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", nil).Code)
}

func TestRateLimit_RejectedRequestsDoNotDrain(t *testing.T) {
	rl, now := newTestLimiter(RateLimitConfig{RPS: 1, Burst: 1})
	h := rl.middleware()(okHandler())

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", nil).Code)
	for range 10 {
		require.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1", nil).Code)
	}

	*now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", nil).Code)
}

func TestRateLimit_Keys(t *testing.T) {
	tests := []struct {
		name    string
		keyFunc func(*http.Request) string
		first   []string // remote addr, header name, header value
		second  []string
		limited bool
	}{
		{
			name:    "different ips are independent",
			first:   []string{"10.0.0.1:1234", "", ""},
			second:  []string{"10.0.0.2:1234", "", ""},
			limited: false,
		},
		{
			name:    "same ip on another port is limited",
			first:   []string{"10.0.0.1:1234", "", ""},
			second:  []string{"10.0.0.1:5678", "", ""},
			limited: true,
		},
		{
			name:    "x-forwarded-for first hop wins",
			first:   []string{"192.168.1.1:4444", "X-Forwarded-For", "203.0.113.50, 70.41.3.18"},
			second:  []string{"192.168.1.2:5555", "X-Forwarded-For", "203.0.113.50"},
			limited: true,
		},
		{
			name:    "x-real-ip",
			first:   []string{"192.168.1.1:4444", "X-Real-IP", "198.51.100.7"},
			second:  []string{"192.168.1.1:4444", "X-Real-IP", "198.51.100.8"},
			limited: false,
		},
		{
			name: "custom key",
			keyFunc: func(r *http.Request) string {
				return r.Header.Get("X-API-Key")
			},
			first:   []string{"10.0.0.1:1", "X-API-Key", "key-a"},
			second:  []string{"10.0.0.2:1", "X-API-Key", "key-a"},
			limited: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl, _ := newTestLimiter(RateLimitConfig{RPS: 1, Burst: 1, KeyFunc: tt.keyFunc})
			h := rl.middleware()(okHandler())

			w := hit(h, tt.first[0], map[string]string{tt.first[1]: tt.first[2]})
			require.Equal(t, http.StatusOK, w.Code)

			w = hit(h, tt.second[0], map[string]string{tt.second[1]: tt.second[2]})
			if tt.limited {
				assert.Equal(t, http.StatusTooManyRequests, w.Code)
			} else {
				assert.Equal(t, http.StatusOK, w.Code)
			}
		})
	}
}

func TestRateLimit_EvictIdle(t *testing.T) {
	rl, now := newTestLimiter(RateLimitConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute})

	rl.limiter("a", *now)
	rl.limiter("b", now.Add(30*time.Second))
	rl.evictIdle(now.Add(time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "a")
	assert.Contains(t, rl.clients, "b")
}
