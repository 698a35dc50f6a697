package limits

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the identity's sorted set to the window, then
// records the request only when the remaining count is under the limit.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
if count >= tonumber(ARGV[3]) then
  return 0
end
redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return 1
`)

// RedisLimiter shares one sliding window per identity across gateway replicas.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
	prefix string
	now    func() time.Time
}

// NewRedisLimiter builds a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, cfg Config, prefix string) *RedisLimiter {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "kereru:rl"
	}
	return &RedisLimiter{client: client, cfg: cfg.normalized(), prefix: prefix, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, identity string) error {
	if l == nil || l.client == nil {
		return nil
	}
	now := l.now().UnixMilli()
	window := l.cfg.Window.Milliseconds()
	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.key(identity)},
		now, now-window, l.cfg.MaxRequests, uuid.NewString(), window,
	).Int()
	if err != nil {
		return fmt.Errorf("rate limit script: %w", err)
	}
	if res == 0 {
		return ErrLimitExceeded
	}
	return nil
}

func (l *RedisLimiter) Clear(ctx context.Context, identity string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, l.key(identity)).Err()
}

func (l *RedisLimiter) key(identity string) string {
	return fmt.Sprintf("%s:%s", l.prefix, identity)
}
