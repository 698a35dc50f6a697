package streamutil

import (
	"context"
	"errors"
	"testing"

	"github.com/ncecere/kereru_gateway/internal/models"
)

func chunkOf(text string) models.ChatChunk {
	return models.ChatChunk{Choices: []models.ChunkDelta{{Delta: models.ChatMessage{Content: text}}}}
}

func TestForwardDeliversChunksAndCloses(t *testing.T) {
	closed := 0
	chunks, closeFn := Forward(context.Background(), func() error { closed++; return nil }, func(ctx context.Context, yield YieldFunc) error {
		for _, part := range []string{"a", "b", "c"} {
			if !yield(chunkOf(part)) {
				return nil
			}
		}
		return nil
	})

	var got string
	for chunk := range chunks {
		got += chunk.Text()
	}
	if got != "abc" {
		t.Fatalf("unexpected text %q", got)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected closer to run once, ran %d times", closed)
	}
}

func TestForwardReportsStreamError(t *testing.T) {
	boom := errors.New("connection reset")
	chunks, closeFn := Forward(context.Background(), nil, func(ctx context.Context, yield YieldFunc) error {
		yield(chunkOf("partial"))
		return boom
	})
	for range chunks {
	}
	if err := closeFn(); !errors.Is(err, boom) {
		t.Fatalf("expected stream error, got %v", err)
	}
}

func TestForwardStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	chunks, closeFn := Forward(ctx, nil, func(ctx context.Context, yield YieldFunc) error {
		for {
			if !yield(chunkOf("x")) {
				return ctx.Err()
			}
		}
	})
	<-chunks
	cancel()
	for range chunks {
	}
	if err := closeFn(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestForwardReportsCancelWhenForwardSwallowsIt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	chunks, closeFn := Forward(ctx, nil, func(ctx context.Context, yield YieldFunc) error {
		for yield(chunkOf("x")) {
		}
		return nil
	})
	<-chunks
	cancel()
	for range chunks {
	}
	if err := closeFn(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
