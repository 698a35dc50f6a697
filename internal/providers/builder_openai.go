package providers

import (
	"context"
	"fmt"
	"strings"

	native "github.com/ncecere/kereru_gateway/internal/adapters/openai"
	"github.com/ncecere/kereru_gateway/internal/config"
)

func init() {
	RegisterDefinition(Definition{
		Name:        config.ProviderOpenAI,
		Description: "OpenAI-compatible chat completions (Together AI by default)",
		Builder:     buildOpenAIProvider,
	})
}

func buildOpenAIProvider(_ context.Context, cfg *config.ModelConfig) (Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai provider requires model.api_key")
	}
	return native.New(native.Options{
		APIKey:     apiKey,
		BaseURL:    strings.TrimSpace(cfg.BaseURL),
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	})
}
