package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/dernounimk/volty/pkg/httpmiddleware"
)

const rateKeyPrefix = "volty:rate:"

// counterClient is the subset of redis.Cmdable used by RateLimiter.
type counterClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

var _ httpmiddleware.Limiter = (*RateLimiter)(nil)

// RateLimiter keeps one counter per key and fixed window so every API
// replica shares the same budget. Rejected hits are counted too.
type RateLimiter struct {
	client counterClient
}

// NewRateLimiter returns a RateLimiter over c.
func NewRateLimiter(c redis.Cmdable) *RateLimiter {
	return &RateLimiter{client: c}
}

// Allow implements httpmiddleware.Limiter.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (httpmiddleware.Decision, error) {
	start := now.Truncate(window)
	slot := start.UnixNano() / int64(window)
	prevKey := fmt.Sprintf("%s%s:%d", rateKeyPrefix, key, slot-1)
	currKey := fmt.Sprintf("%s%s:%d", rateKeyPrefix, key, slot)

	prev, err := l.client.Get(ctx, prevKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return httpmiddleware.Decision{}, errors.Wrap(err, "get previous window")
	}
	var prevCount float64
	if prev != "" {
		n, err := strconv.ParseInt(prev, 10, 64)
		if err != nil {
			return httpmiddleware.Decision{}, errors.Wrapf(err, "parse counter %q", prevKey)
		}
		prevCount = float64(n)
	}

	n, err := l.client.Incr(ctx, currKey).Result()
	if err != nil {
		return httpmiddleware.Decision{}, errors.Wrap(err, "increment window")
	}
	if n == 1 {
		if err := l.client.Expire(ctx, currKey, 2*window).Err(); err != nil {
			return httpmiddleware.Decision{}, errors.Wrap(err, "expire window")
		}
	}

	d := httpmiddleware.Decision{ResetAt: start.Add(window)}
	count := httpmiddleware.SlidingCount(prevCount, float64(n-1), start, window, now)
	if count >= float64(limit) {
		return d, nil
	}
	d.Allowed = true
	d.Remaining = max(int(float64(limit)-count-1), 0)
	return d, nil
}
