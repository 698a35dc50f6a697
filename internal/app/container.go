package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ncecere/kereru_gateway/internal/assistant"
	"github.com/ncecere/kereru_gateway/internal/auth"
	"github.com/ncecere/kereru_gateway/internal/cache"
	"github.com/ncecere/kereru_gateway/internal/config"
	"github.com/ncecere/kereru_gateway/internal/guardrails"
	"github.com/ncecere/kereru_gateway/internal/limits"
	"github.com/ncecere/kereru_gateway/internal/observability"
	"github.com/ncecere/kereru_gateway/internal/providers"
	"github.com/ncecere/kereru_gateway/internal/search"
)

// Container aggregates runtime dependencies for handlers and services.
type Container struct {
	Config        *config.Config
	Redis         *redis.Client
	Library       *guardrails.Library
	Evaluator     *guardrails.Evaluator
	Webhook       *guardrails.WebhookSink
	Limiter       limits.Limiter
	Window        *limits.SlidingWindow
	Provider      providers.Provider
	Search        *search.Client
	Assistant     *assistant.Service
	Idempotency   *cache.IdempotencyCache
	AdminTokens   *auth.TokenManager
	Observability *observability.Provider
}

// Option customizes container construction. Used by tests.
type Option func(*containerOptions)

type containerOptions struct {
	provider providers.Provider
	sinks    []guardrails.Sink
}

// WithProvider skips the provider factory and uses p directly.
func WithProvider(p providers.Provider) Option {
	return func(o *containerOptions) { o.provider = p }
}

// WithSink adds an extra safety log sink.
func WithSink(s guardrails.Sink) Option {
	return func(o *containerOptions) { o.sinks = append(o.sinks, s) }
}

// NewContainer builds a dependency container from the provided primitives.
// redisClient may be nil when the memory limiter is configured.
func NewContainer(ctx context.Context, cfg *config.Config, redisClient *redis.Client, obs *observability.Provider, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	var o containerOptions
	for _, opt := range opts {
		opt(&o)
	}

	library, err := LoadLibrary(cfg.Guardrails)
	if err != nil {
		return nil, err
	}

	webhook := guardrails.NewWebhookSink(guardrails.WebhookConfig{
		URL:        cfg.Audit.WebhookURL,
		AuthHeader: cfg.Audit.AuthHeader,
		AuthValue:  cfg.Audit.AuthValue,
		Timeout:    cfg.Audit.Timeout,
		MaxRetries: uint64(cfg.Audit.MaxRetries),
		QueueSize:  cfg.Audit.QueueSize,
	})
	sinks := guardrails.MultiSink{guardrails.NewSlogSink(slog.Default(), cfg.Guardrails.WarnToxicityScore)}
	if webhook != nil {
		sinks = append(sinks, webhook)
	}
	sinks = append(sinks, o.sinks...)

	evaluator := guardrails.NewEvaluator(guardrails.Config{
		MaxPromptChars:    cfg.Guardrails.MaxPromptChars,
		MaxOutputChars:    cfg.Guardrails.MaxOutputChars,
		ToxicityThreshold: cfg.Guardrails.ToxicityThreshold,
		LogContentChars:   cfg.Guardrails.LogContentChars,
	}, library.Classifier(cfg.Guardrails.RegionalPatterns), sinks)
	if obs != nil {
		evaluator.WithObserver(obs)
	}

	limiterCfg := limits.Config{MaxRequests: cfg.RateLimits.MaxRequests, Window: cfg.RateLimits.Window}
	var (
		limiter limits.Limiter
		window  *limits.SlidingWindow
	)
	switch cfg.RateLimits.Backend {
	case config.RateLimitBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis client is required for the redis rate limit backend")
		}
		limiter = limits.NewRedisLimiter(redisClient, limiterCfg, cfg.RateLimits.KeyPrefix)
	default:
		window = limits.NewSlidingWindow(limiterCfg, limits.WithShards(cfg.RateLimits.Shards))
		limiter = window
	}
	limiter = observability.InstrumentLimiter(limiter, cfg.RateLimits.Backend, obs)

	provider := o.provider
	if provider == nil {
		provider, err = providers.NewFactory(&cfg.Model).Build(ctx)
		if err != nil {
			return nil, fmt.Errorf("init model provider: %w", err)
		}
	}
	provider = observability.InstrumentProvider(provider, cfg.Model.Provider, obs)

	var (
		searchClient *search.Client
		searcher     assistant.Searcher
	)
	if cfg.Search.Enabled {
		searchClient = search.New(search.Options{
			APIKey:         cfg.Search.APIKey,
			BaseURL:        cfg.Search.BaseURL,
			IncludeDomains: cfg.Search.IncludeDomains,
			MaxResults:     cfg.Search.MaxResults,
			SearchDepth:    cfg.Search.SearchDepth,
			Timeout:        cfg.Search.Timeout,
			MaxRetries:     uint64(cfg.Search.MaxRetries),
		})
		if searchClient != nil {
			searcher = searchClient
		}
	}

	maxTokens := int32(0)
	if cfg.Model.MaxTokens > 0 {
		maxTokens = int32(cfg.Model.MaxTokens)
	}
	chat := assistant.NewService(provider, evaluator, limiter, searcher, assistant.Options{
		Model:       cfg.Model.ModelID,
		Temperature: float32(cfg.Model.Temperature),
		MaxTokens:   maxTokens,
	})

	var adminTokens *auth.TokenManager
	if secret := strings.TrimSpace(cfg.Admin.JWTSecret); secret != "" {
		adminTokens, err = auth.NewTokenManager(secret, cfg.Admin.TokenTTL, cfg.Admin.Issuer)
		if err != nil {
			return nil, fmt.Errorf("init admin tokens: %w", err)
		}
	}

	return &Container{
		Config:        cfg,
		Redis:         redisClient,
		Library:       library,
		Evaluator:     evaluator,
		Webhook:       webhook,
		Limiter:       limiter,
		Window:        window,
		Provider:      provider,
		Search:        searchClient,
		Assistant:     chat,
		Idempotency:   cache.NewIdempotencyCache(redisClient, cfg.Server.IdempotencyTTL),
		AdminTokens:   adminTokens,
		Observability: obs,
	}, nil
}

// LoadLibrary returns the configured pattern library, falling back to the
// compiled-in defaults when no patterns file is set.
func LoadLibrary(cfg config.GuardrailsConfig) (*guardrails.Library, error) {
	path := strings.TrimSpace(cfg.PatternsFile)
	if path == "" {
		return guardrails.DefaultLibrary(), nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("guardrails patterns file: %w", err)
	}
	library, err := guardrails.LoadLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("load guardrails patterns: %w", err)
	}
	slog.Info("guardrail patterns loaded", slog.String("path", path))
	return library, nil
}

// Start launches background workers. They stop when ctx is cancelled.
func (c *Container) Start(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Window != nil {
		c.Window.StartSweeper(ctx, c.Config.RateLimits.SweepInterval)
	}
	if c.Webhook != nil {
		c.Webhook.Start(ctx)
	}
}

// Wait blocks until background workers have drained.
func (c *Container) Wait() {
	if c == nil || c.Webhook == nil {
		return
	}
	c.Webhook.Wait()
}
