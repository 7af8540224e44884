package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Decision is the outcome of a single limiter check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts hits per key in a sliding window of the given size.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Decision, error)
}

// RateLimitRule is a request budget. A nil Match applies to every request.
type RateLimitRule struct {
	Name   string
	Max    int
	Window time.Duration
	Match  func(*http.Request) bool
}

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	// Rules are checked in order and the first matching one is applied.
	// Requests matching no rule are not limited.
	Rules []RateLimitRule
	// Limiter stores the counters. Defaults to a MemoryLimiter.
	Limiter Limiter
	// KeyFunc identifies the client. Defaults to the client IP.
	KeyFunc func(*http.Request) string
	// Skip exempts matching requests, e.g. health probes.
	Skip func(*http.Request) bool
}

// RateLimit enforces the first matching rule per client and answers 429 once
// the budget is spent. Limited responses carry the X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset headers. A limiter failure lets
// the request through.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		cfg.Limiter = NewMemoryLimiter()
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			rule, ok := matchRule(cfg.Rules, r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			key := rule.Name + ":" + cfg.KeyFunc(r)
			d, err := cfg.Limiter.Allow(r.Context(), key, rule.Max, rule.Window, time.Now())
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable",
					zap.String("rule", rule.Name),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retryAfter := max(time.Until(d.ResetAt), 0)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matchRule(rules []RateLimitRule, r *http.Request) (RateLimitRule, bool) {
	for _, rule := range rules {
		if rule.Max <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Match == nil || rule.Match(r) {
			return rule, true
		}
	}
	return RateLimitRule{}, false
}

// SlidingCount weights the previous window by its overlap with the sliding
// window ending at now. currStart is the start of the current fixed window.
func SlidingCount(prev, curr float64, currStart time.Time, window time.Duration, now time.Time) float64 {
	overlap := 1.0 - now.Sub(currStart).Seconds()/window.Seconds()
	return prev*max(overlap, 0) + curr
}

type counter struct {
	window    time.Duration
	prevCount float64
	currCount float64
	currStart time.Time
}

// MemoryLimiter keeps counters in process memory. Counters are not shared
// between replicas.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// NewMemoryLimiter returns an empty MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counters: make(map[string]*counter)}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(window)
	c, ok := l.counters[key]
	if !ok {
		c = &counter{window: window, currStart: start}
		l.counters[key] = c
	}
	switch elapsed := start.Sub(c.currStart); {
	case elapsed >= 2*window:
		c.prevCount, c.currCount = 0, 0
		c.currStart = start
	case elapsed >= window:
		c.prevCount, c.currCount = c.currCount, 0
		c.currStart = start
	}

	d := Decision{ResetAt: c.currStart.Add(window)}
	count := SlidingCount(c.prevCount, c.currCount, c.currStart, window, now)
	if count >= float64(limit) {
		return d, nil
	}
	c.currCount++
	d.Allowed = true
	d.Remaining = max(int(float64(limit)-count-1), 0)
	return d, nil
}

// Cleanup drops counters idle for two windows.
func (l *MemoryLimiter) Cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, c := range l.counters {
		if now.Sub(c.currStart) >= 2*c.window {
			delete(l.counters, key)
		}
	}
}

// Run calls Cleanup every interval until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Cleanup(now)
		}
	}
}

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
