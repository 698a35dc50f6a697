package providers

import (
	"context"

	"github.com/ncecere/kereru_gateway/internal/models"
)

type ChatCompletions interface {
	Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error)
}

type ChatStreaming interface {
	ChatStream(ctx context.Context, req models.ChatRequest) (<-chan models.ChatChunk, func() error, error)
}

// Provider is a model backend able to serve both request styles.
type Provider interface {
	ChatCompletions
	ChatStreaming
}
