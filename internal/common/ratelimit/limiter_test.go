package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"ojbox/internal/common/cache"
	pkgerrors "ojbox/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	counter, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	return NewLimiter(counter, time.Minute, time.Second), mr
}

func TestAllowFixedWindow(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "ojbox:rate:ip:1.2.3.4", 3, 0); err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
	}
	if err := l.Allow(ctx, "ojbox:rate:ip:1.2.3.4", 3, 0); !pkgerrors.Is(err, pkgerrors.TooManyRequests) {
		t.Fatalf("expected TooManyRequests, got %v", err)
	}
	if err := l.Allow(ctx, "ojbox:rate:ip:5.6.7.8", 3, 0); err != nil {
		t.Fatalf("other keys must not be affected: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Allow(ctx, "ojbox:rate:ip:1.2.3.4", 3, 0); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}
}

func TestAllowRestoresMissingExpiry(t *testing.T) {
	l, mr := newTestLimiter(t)
	if err := mr.Set("k", "5"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := l.Allow(context.Background(), "k", 100, 30*time.Second); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ttl := mr.TTL("k"); ttl != 30*time.Second {
		t.Fatalf("expected expiry to be restored, got %v", ttl)
	}
}

func TestAllowZeroMaxDisables(t *testing.T) {
	l := NewLimiter(&failingCounter{}, time.Minute, 0)
	if err := l.Allow(context.Background(), "k", 0, 0); err != nil {
		t.Fatalf("zero max should allow: %v", err)
	}
}

func TestAllowCounterFailure(t *testing.T) {
	l := NewLimiter(&failingCounter{}, time.Minute, 0)
	if err := l.Allow(context.Background(), "k", 1, 0); !pkgerrors.Is(err, pkgerrors.CacheError) {
		t.Fatalf("expected CacheError, got %v", err)
	}
	if err := NewLimiter(nil, time.Minute, 0).Allow(context.Background(), "k", 1, 0); !pkgerrors.Is(err, pkgerrors.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}

type failingCounter struct{}

var errDown = errors.New("redis down")

func (failingCounter) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return false, errDown
}
func (failingCounter) Incr(ctx context.Context, key string) (int64, error) { return 0, errDown }
func (failingCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return errDown
}
func (failingCounter) TTL(ctx context.Context, key string) (time.Duration, error) { return 0, errDown }
