package streamutil

import (
	"context"
	"sync"

	"github.com/ncecere/kereru_gateway/internal/models"
)

// YieldFunc receives converted chat chunks. Returning false stops further forwarding.
type YieldFunc func(models.ChatChunk) bool

// Forward wraps provider-specific streaming logic with a shared channel lifecycle so adapters follow the
// same contract when emitting chat chunks. The forward callback should invoke yield for every chunk until it
// returns false or the stream is exhausted, and return the upstream error if the stream broke.
//
// The returned close func releases the upstream stream. Once the channel is drained it also reports the
// error forward returned, or the context error when the stream was cut short by cancellation.
func Forward(ctx context.Context, closer func() error, forward func(ctx context.Context, yield YieldFunc) error) (<-chan models.ChatChunk, func() error) {
	chunks := make(chan models.ChatChunk)
	var (
		once      sync.Once
		mu        sync.Mutex
		streamErr error
	)
	callCloser := func() {
		if closer == nil {
			return
		}
		once.Do(func() {
			_ = closer()
		})
	}

	go func() {
		defer close(chunks)
		defer callCloser()

		err := forward(ctx, func(chunk models.ChatChunk) bool {
			if ctx.Err() != nil {
				return false
			}
			select {
			case <-ctx.Done():
				return false
			case chunks <- chunk:
				return true
			}
		})
		if err == nil {
			err = ctx.Err()
		}
		mu.Lock()
		streamErr = err
		mu.Unlock()
	}()

	return chunks, func() error {
		callCloser()
		mu.Lock()
		defer mu.Unlock()
		return streamErr
	}
}
