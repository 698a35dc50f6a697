package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyCache stores serialized chat replies keyed by caller identity and
// Idempotency-Key so a retried request does not reach the model twice.
type IdempotencyCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyCache(client *redis.Client, ttl time.Duration) *IdempotencyCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &IdempotencyCache{client: client, ttl: ttl}
}

func (c *IdempotencyCache) Get(ctx context.Context, identity, key string) ([]byte, bool) {
	if c == nil || c.client == nil || key == "" {
		return nil, false
	}
	data, err := c.client.Get(ctx, c.prefixed(identity, key)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *IdempotencyCache) Set(ctx context.Context, identity, key string, value []byte) {
	if c == nil || c.client == nil || key == "" || len(value) == 0 {
		return
	}
	if err := c.client.Set(ctx, c.prefixed(identity, key), value, c.ttl).Err(); err != nil {
		slog.Warn("idempotency cache write failed", slog.String("error", err.Error()))
	}
}

func (c *IdempotencyCache) prefixed(identity, key string) string {
	return "kereru:idem:" + identity + ":" + key
}
