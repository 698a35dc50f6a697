package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ncecere/kereru_gateway/internal/config"
)

// Builder constructs a provider from the model configuration.
type Builder func(ctx context.Context, cfg *config.ModelConfig) (Provider, error)

// Factory resolves the configured provider using a registry of builders.
type Factory struct {
	cfg      *config.ModelConfig
	builders map[string]Builder
}

// NewFactory creates a factory with the default provider registry.
func NewFactory(cfg *config.ModelConfig) *Factory {
	return &Factory{cfg: cfg, builders: cloneDefaultBuilders()}
}

// Register allows tests or callers to override provider builders.
func (f *Factory) Register(name string, builder Builder) {
	if f.builders == nil {
		f.builders = make(map[string]Builder)
	}
	f.builders[name] = builder
}

// Build instantiates the provider named by model.provider.
func (f *Factory) Build(ctx context.Context) (Provider, error) {
	cfg := EnsureConfig(f.cfg)
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	builder, ok := f.builders[name]
	if !ok {
		return nil, fmt.Errorf("provider %q unsupported", cfg.Provider)
	}
	provider, err := builder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", name, err)
	}
	return provider, nil
}
