package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func fromAddr(addr string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	r.RemoteAddr = addr
	return r
}

func limitAll(limit int) RateLimitConfig {
	return RateLimitConfig{Rules: []RateLimitRule{{Name: "api", Max: limit, Window: time.Minute}}}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(limitAll(2))(okHandler())

	for i := range 2 {
		w := serve(h, fromAddr("10.0.0.1:9999"))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := serve(h, fromAddr("10.0.0.1:9999"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	code, msg := decodeError(t, w)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", msg)
}

func TestRateLimit_Keys(t *testing.T) {
	for _, tt := range []struct {
		name   string
		first  func() *http.Request
		second func() *http.Request
		want   int
	}{
		{
			name:   "DifferentIPs",
			first:  func() *http.Request { return fromAddr("10.0.0.1:1") },
			second: func() *http.Request { return fromAddr("10.0.0.2:1") },
			want:   http.StatusOK,
		},
		{
			name:   "SameIPDifferentPort",
			first:  func() *http.Request { return fromAddr("10.0.0.1:1") },
			second: func() *http.Request { return fromAddr("10.0.0.1:2") },
			want:   http.StatusTooManyRequests,
		},
		{
			name: "ForwardedFor",
			first: func() *http.Request {
				r := fromAddr("192.168.1.1:1")
				r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
				return r
			},
			second: func() *http.Request {
				r := fromAddr("192.168.1.2:1")
				r.Header.Set("X-Forwarded-For", "203.0.113.50")
				return r
			},
			want: http.StatusTooManyRequests,
		},
		{
			name: "RealIP",
			first: func() *http.Request {
				r := fromAddr("192.168.1.1:1")
				r.Header.Set("X-Real-IP", "198.51.100.7")
				return r
			},
			second: func() *http.Request { return fromAddr("192.168.1.1:2") },
			want:   http.StatusOK,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(limitAll(1))(okHandler())
			require.Equal(t, http.StatusOK, serve(h, tt.first()).Code)
			assert.Equal(t, tt.want, serve(h, tt.second()).Code)
		})
	}
}

func TestRateLimit_Skip(t *testing.T) {
	cfg := limitAll(1)
	cfg.Skip = func(r *http.Request) bool { return r.URL.Path == "/readyz" }
	h := RateLimit(cfg)(okHandler())

	for range 3 {
		r := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		r.RemoteAddr = "10.0.0.1:1"
		w := serve(h, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
	assert.Equal(t, http.StatusOK, serve(h, fromAddr("10.0.0.1:1")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, fromAddr("10.0.0.1:1")).Code)
}

func TestRateLimit_Rules(t *testing.T) {
	isOrder := func(r *http.Request) bool { return r.Method == http.MethodPost && r.URL.Path == "/api/orders" }
	h := RateLimit(RateLimitConfig{Rules: []RateLimitRule{
		{Name: "orders", Max: 1, Window: time.Minute, Match: isOrder},
		{Name: "disabled", Max: 0, Window: time.Minute},
		{Name: "api", Max: 3, Window: time.Minute},
	}})(okHandler())

	require.Equal(t, http.StatusOK, serve(h, fromAddr("10.0.0.1:1")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, fromAddr("10.0.0.1:1")).Code)

	browse := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	browse.RemoteAddr = "10.0.0.1:1"
	w := serve(h, browse)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_NoRules(t *testing.T) {
	h := RateLimit(RateLimitConfig{})(okHandler())
	for range 5 {
		w := serve(h, fromAddr("10.0.0.1:1"))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration, time.Time) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}

func TestRateLimit_LimiterErrorPassesThrough(t *testing.T) {
	cfg := limitAll(1)
	cfg.Limiter = failingLimiter{}
	h := RateLimit(cfg)(okHandler())

	for range 2 {
		w := serve(h, fromAddr("10.0.0.1:1"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestMemoryLimiter_WindowRotation(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()
	start := time.Unix(1_700_000_000, 0)
	allow := func(at time.Duration) Decision {
		d, err := l.Allow(ctx, "k", 2, time.Second, start.Add(at))
		require.NoError(t, err)
		return d
	}

	require.True(t, allow(0).Allowed)
	require.True(t, allow(0).Allowed)
	require.False(t, allow(100*time.Millisecond).Allowed)

	// Half of the previous window still weighs in.
	d := allow(1500 * time.Millisecond)
	require.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	require.False(t, allow(1500*time.Millisecond).Allowed)

	// Two full windows later the counts are gone.
	d = allow(4 * time.Second)
	require.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, start.Add(5*time.Second), d.ResetAt)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()
	start := time.Unix(1_700_000_000, 0)

	_, err := l.Allow(ctx, "old", 5, time.Second, start)
	require.NoError(t, err)
	_, err = l.Allow(ctx, "fresh", 5, time.Second, start.Add(3*time.Second))
	require.NoError(t, err)
	l.Cleanup(start.Add(3 * time.Second))

	assert.NotContains(t, l.counters, "old")
	assert.Contains(t, l.counters, "fresh")
}

func TestSlidingCount(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	for _, tt := range []struct {
		name string
		at   time.Duration
		want float64
	}{
		{"WindowStart", 0, 14},
		{"Quarter", 250 * time.Millisecond, 11.5},
		{"WindowEnd", time.Second, 4},
		{"PastWindow", 3 * time.Second, 4},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SlidingCount(10, 4, start, time.Second, start.Add(tt.at)), 1e-9)
		})
	}
}
