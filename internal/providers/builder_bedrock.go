package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ncecere/kereru_gateway/internal/adapters/bedrock"
	"github.com/ncecere/kereru_gateway/internal/config"
)

func init() {
	RegisterDefinition(Definition{
		Name:        config.ProviderBedrock,
		Description: "Anthropic messages on Amazon Bedrock",
		Builder:     buildBedrockProvider,
	})
}

func buildBedrockProvider(ctx context.Context, cfg *config.ModelConfig) (Provider, error) {
	region := strings.TrimSpace(cfg.Bedrock.Region)
	if region == "" {
		return nil, fmt.Errorf("bedrock provider requires model.bedrock.region")
	}
	opts := bedrock.Options{
		Region:          region,
		Profile:         strings.TrimSpace(cfg.Bedrock.Profile),
		AccessKeyID:     strings.TrimSpace(cfg.Bedrock.AccessKeyID),
		SecretAccessKey: strings.TrimSpace(cfg.Bedrock.SecretAccessKey),
		SessionToken:    strings.TrimSpace(cfg.Bedrock.SessionToken),
		ModelID:         strings.TrimSpace(cfg.ModelID),
	}
	if cfg.MaxTokens > 0 {
		opts.DefaultMaxTokens = int32(cfg.MaxTokens)
	}
	return bedrock.New(ctx, opts)
}
