package limits

import (
	"context"
	"errors"
	"time"
)

var ErrLimitExceeded = errors.New("rate limit exceeded")

// Config bounds how many requests one identity may make inside the trailing window.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultConfig allows 30 requests per minute.
func DefaultConfig() Config {
	return Config{MaxRequests: 30, Window: time.Minute}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxRequests <= 0 {
		c.MaxRequests = def.MaxRequests
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	return c
}

// Limiter is implemented by the in-memory and Redis backends.
type Limiter interface {
	// Allow records a request for identity or returns ErrLimitExceeded.
	Allow(ctx context.Context, identity string) error
	// Clear forgets all recorded requests for identity.
	Clear(ctx context.Context, identity string) error
}
