package limits

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

const defaultShards = 32

// SlidingWindow is an in-process sliding-window limiter. Identities are spread
// over lock-striped shards so check-then-append is atomic per identity.
type SlidingWindow struct {
	cfg    Config
	now    func() time.Time
	shards []*windowShard
}

type windowShard struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// Option customizes a SlidingWindow.
type Option func(*SlidingWindow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *SlidingWindow) {
		if now != nil {
			w.now = now
		}
	}
}

// WithShards sets the number of lock stripes.
func WithShards(n int) Option {
	return func(w *SlidingWindow) {
		if n > 0 {
			w.shards = newShards(n)
		}
	}
}

// NewSlidingWindow builds an in-memory limiter.
func NewSlidingWindow(cfg Config, opts ...Option) *SlidingWindow {
	w := &SlidingWindow{
		cfg:    cfg.normalized(),
		now:    time.Now,
		shards: newShards(defaultShards),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func newShards(n int) []*windowShard {
	shards := make([]*windowShard, n)
	for i := range shards {
		shards[i] = &windowShard{windows: make(map[string][]time.Time)}
	}
	return shards
}

func (w *SlidingWindow) shard(identity string) *windowShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return w.shards[h.Sum32()%uint32(len(w.shards))]
}

// Check reports whether identity may make another request and records it when
// allowed. A denied request is not recorded.
func (w *SlidingWindow) Check(identity string) bool {
	now := w.now()
	s := w.shard(identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	recent := prune(s.windows[identity], now, w.cfg.Window)
	if len(recent) >= w.cfg.MaxRequests {
		s.windows[identity] = recent
		return false
	}
	s.windows[identity] = append(recent, now)
	return true
}

// Reset clears the history for identity.
func (w *SlidingWindow) Reset(identity string) {
	s := w.shard(identity)
	s.mu.Lock()
	delete(s.windows, identity)
	s.mu.Unlock()
}

func (w *SlidingWindow) Allow(_ context.Context, identity string) error {
	if w == nil {
		return nil
	}
	if !w.Check(identity) {
		return ErrLimitExceeded
	}
	return nil
}

func (w *SlidingWindow) Clear(_ context.Context, identity string) error {
	if w == nil {
		return nil
	}
	w.Reset(identity)
	return nil
}

// Sweep drops identities with no timestamps left inside the window and
// returns how many were removed.
func (w *SlidingWindow) Sweep() int {
	now := w.now()
	removed := 0
	for _, s := range w.shards {
		s.mu.Lock()
		for identity, stamps := range s.windows {
			recent := prune(stamps, now, w.cfg.Window)
			if len(recent) == 0 {
				delete(s.windows, identity)
				removed++
				continue
			}
			s.windows[identity] = recent
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked identities.
func (w *SlidingWindow) Len() int {
	total := 0
	for _, s := range w.shards {
		s.mu.Lock()
		total += len(s.windows)
		s.mu.Unlock()
	}
	return total
}

// StartSweeper runs Sweep on interval until ctx is cancelled.
func (w *SlidingWindow) StartSweeper(ctx context.Context, interval time.Duration) {
	if w == nil {
		return
	}
	if interval <= 0 {
		interval = w.cfg.Window
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := w.Sweep(); removed > 0 {
					slog.Debug("rate limiter sweep", slog.Int("removed", removed))
				}
			}
		}
	}()
}

// prune keeps timestamps with now - t < window. Stamps are appended in order.
func prune(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	idx := 0
	for idx < len(stamps) && now.Sub(stamps[idx]) >= window {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[idx:]...)
}
