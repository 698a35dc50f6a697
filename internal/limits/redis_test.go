package limits

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisLimiter(t *testing.T, cfg Config) (*RedisLimiter, *fakeClock, func()) {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	limiter := NewRedisLimiter(client, cfg, "test:rl")
	clock := newFakeClock()
	limiter.now = clock.Now
	cleanup := func() {
		client.Close()
		server.Close()
	}
	return limiter, clock, cleanup
}

func TestRedisLimiterDeniesAfterMax(t *testing.T) {
	limiter, _, cleanup := newTestRedisLimiter(t, Config{MaxRequests: 3, Window: time.Second})
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "u1"); err != nil {
			t.Fatalf("request %d should pass: %v", i, err)
		}
	}
	if err := limiter.Allow(ctx, "u1"); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if err := limiter.Clear(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := limiter.Allow(ctx, "u1"); err != nil {
		t.Fatalf("request after clear should pass: %v", err)
	}
}

func TestRedisLimiterSlides(t *testing.T) {
	limiter, clock, cleanup := newTestRedisLimiter(t, Config{MaxRequests: 1, Window: time.Second})
	defer cleanup()
	ctx := context.Background()

	if err := limiter.Allow(ctx, "u1"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	clock.Advance(999 * time.Millisecond)
	if err := limiter.Allow(ctx, "u1"); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected deny inside window, got %v", err)
	}
	clock.Advance(time.Millisecond)
	if err := limiter.Allow(ctx, "u1"); err != nil {
		t.Fatalf("expected allow after window: %v", err)
	}
	if err := limiter.Allow(ctx, "u2"); err != nil {
		t.Fatalf("other identity should be independent: %v", err)
	}
}

func TestNilRedisLimiterAllows(t *testing.T) {
	var limiter *RedisLimiter
	if err := limiter.Allow(context.Background(), "x"); err != nil {
		t.Fatalf("nil limiter should allow, got %v", err)
	}
}
