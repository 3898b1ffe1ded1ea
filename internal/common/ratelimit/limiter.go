// Package ratelimit enforces fixed-window request limits backed by Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"ojbox/internal/common/cache"
	pkgerrors "ojbox/pkg/errors"
)

const defaultRedisTimeout = 200 * time.Millisecond

// Limiter counts hits per key in fixed windows.
type Limiter struct {
	cache        cache.CounterOps
	window       time.Duration
	redisTimeout time.Duration
}

// NewLimiter creates a limiter. window is used when Allow gets a zero window.
func NewLimiter(counter cache.CounterOps, window, redisTimeout time.Duration) *Limiter {
	if redisTimeout <= 0 {
		redisTimeout = defaultRedisTimeout
	}
	return &Limiter{cache: counter, window: window, redisTimeout: redisTimeout}
}

// Allow records one hit for key and returns TooManyRequests once the window
// holds more than max hits. Counter failures return CacheError.
func (l *Limiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if l.cache == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = l.window
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.redisTimeout)
	defer cancel()

	acquired, err := l.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	var count int64
	if acquired {
		count = 1
	} else {
		count, err = l.cache.Incr(ctxCache, key)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
		// A key without expiry would never reset.
		ttl, ttlErr := l.cache.TTL(ctxCache, key)
		if ttlErr == nil && ttl <= 0 {
			_ = l.cache.Expire(ctxCache, key, window)
		}
	}
	if int(count) > max {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded, retry in %s", window))
	}
	return nil
}
