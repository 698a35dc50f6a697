package observability

import (
	"context"
	"errors"
	"time"

	"github.com/ncecere/kereru_gateway/internal/limits"
	"github.com/ncecere/kereru_gateway/internal/models"
	"github.com/ncecere/kereru_gateway/internal/providers"
)

type instrumentedLimiter struct {
	limits.Limiter
	backend string
	metrics *Provider
}

// InstrumentLimiter counts ErrLimitExceeded results. A nil metrics provider
// returns the limiter unchanged.
func InstrumentLimiter(l limits.Limiter, backend string, metrics *Provider) limits.Limiter {
	if l == nil || metrics == nil {
		return l
	}
	return &instrumentedLimiter{Limiter: l, backend: backend, metrics: metrics}
}

func (l *instrumentedLimiter) Allow(ctx context.Context, identity string) error {
	err := l.Limiter.Allow(ctx, identity)
	if errors.Is(err, limits.ErrLimitExceeded) {
		l.metrics.RecordRateLimited(l.backend)
	}
	return err
}

type instrumentedProvider struct {
	next    providers.Provider
	name    string
	metrics *Provider
}

// InstrumentProvider records upstream latency for every model call.
func InstrumentProvider(p providers.Provider, name string, metrics *Provider) providers.Provider {
	if p == nil || metrics == nil {
		return p
	}
	return &instrumentedProvider{next: p, name: name, metrics: metrics}
}

func (p *instrumentedProvider) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	start := time.Now()
	resp, err := p.next.Chat(ctx, req)
	p.metrics.RecordUpstream(p.name, "chat", err, time.Since(start))
	return resp, err
}

// ChatStream measures time to the first byte of the stream.
func (p *instrumentedProvider) ChatStream(ctx context.Context, req models.ChatRequest) (<-chan models.ChatChunk, func() error, error) {
	start := time.Now()
	chunks, closeFn, err := p.next.ChatStream(ctx, req)
	p.metrics.RecordUpstream(p.name, "stream", err, time.Since(start))
	return chunks, closeFn, err
}
