package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the runtime configuration for the gateway.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Guardrails    GuardrailsConfig    `mapstructure:"guardrails"`
	Audit         AuditConfig         `mapstructure:"audit"`
	RateLimits    RateLimitConfig     `mapstructure:"rate_limits"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Model         ModelConfig         `mapstructure:"model"`
	Search        SearchConfig        `mapstructure:"search"`
	Admin         AdminConfig         `mapstructure:"admin"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	BodyLimitMB           int           `mapstructure:"body_limit_mb"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	StreamMaxDuration     time.Duration `mapstructure:"stream_max_duration"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
	AllowedOrigins        []string      `mapstructure:"allowed_origins"`
	IdempotencyTTL        time.Duration `mapstructure:"idempotency_ttl"`

	// ProxyHeader names the header holding the client IP when running behind
	// a reverse proxy. Only honoured from TrustedProxies when that list is set.
	ProxyHeader    string   `mapstructure:"proxy_header"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GuardrailsConfig struct {
	MaxPromptChars    int     `mapstructure:"max_prompt_chars"`
	MaxOutputChars    int     `mapstructure:"max_output_chars"`
	ToxicityThreshold float64 `mapstructure:"toxicity_threshold"`
	WarnToxicityScore float64 `mapstructure:"warn_toxicity_score"`
	LogContentChars   int     `mapstructure:"log_content_chars"`
	PatternsFile      string  `mapstructure:"patterns_file"`
	RegionalPatterns  bool    `mapstructure:"regional_patterns"`
}

type AuditConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	AuthHeader string        `mapstructure:"auth_header"`
	AuthValue  string        `mapstructure:"auth_value"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	QueueSize  int           `mapstructure:"queue_size"`
}

type RateLimitConfig struct {
	Backend       string        `mapstructure:"backend"`
	MaxRequests   int           `mapstructure:"max_requests"`
	Window        time.Duration `mapstructure:"window"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Shards        int           `mapstructure:"shards"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type ModelConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	ModelID     string        `mapstructure:"model_id"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Bedrock     BedrockConfig `mapstructure:"bedrock"`
}

type BedrockConfig struct {
	Region          string `mapstructure:"region"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

type SearchConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	IncludeDomains []string      `mapstructure:"include_domains"`
	MaxResults     int           `mapstructure:"max_results"`
	SearchDepth    string        `mapstructure:"search_depth"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

type AdminConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type ObservabilityConfig struct {
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

const (
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"

	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from YAML and environment variables.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else if cfg := os.Getenv("KERERU_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	}

	if !explicitFile {
		v.SetConfigName("kereru")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("KERERU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		timeStringToDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate ensures required values are set and normalizes the rest.
func (c *Config) Validate() error {
	var missing []string

	c.Model.Provider = strings.ToLower(strings.TrimSpace(c.Model.Provider))
	switch c.Model.Provider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.Model.APIKey) == "" {
			missing = append(missing, "KERERU_MODEL_API_KEY")
		}
	case ProviderBedrock:
		if strings.TrimSpace(c.Model.Bedrock.Region) == "" {
			missing = append(missing, "KERERU_MODEL_BEDROCK_REGION")
		}
	default:
		return fmt.Errorf("model.provider must be %q or %q", ProviderOpenAI, ProviderBedrock)
	}
	if strings.TrimSpace(c.Model.ModelID) == "" {
		missing = append(missing, "KERERU_MODEL_MODEL_ID")
	}

	c.RateLimits.Backend = strings.ToLower(strings.TrimSpace(c.RateLimits.Backend))
	switch c.RateLimits.Backend {
	case "", RateLimitBackendMemory:
		c.RateLimits.Backend = RateLimitBackendMemory
	case RateLimitBackendRedis:
		if c.Redis.URL == "" {
			missing = append(missing, "KERERU_REDIS_URL")
		}
	default:
		return fmt.Errorf("rate_limits.backend must be %q or %q", RateLimitBackendMemory, RateLimitBackendRedis)
	}

	if c.Search.Enabled && strings.TrimSpace(c.Search.APIKey) == "" {
		missing = append(missing, "KERERU_SEARCH_API_KEY")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if err := c.Guardrails.validate(); err != nil {
		return err
	}
	if c.RateLimits.MaxRequests <= 0 {
		return fmt.Errorf("rate_limits.max_requests must be > 0")
	}
	if c.RateLimits.Window <= 0 {
		return fmt.Errorf("rate_limits.window must be > 0")
	}
	if c.RateLimits.SweepInterval <= 0 {
		c.RateLimits.SweepInterval = c.RateLimits.Window
	}
	if c.Redis.PoolSize < 0 {
		return fmt.Errorf("redis.pool_size must be >= 0")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be between 0 and 2")
	}
	if c.Search.MaxRetries < 0 {
		return fmt.Errorf("search.max_retries must be >= 0")
	}
	if c.Audit.MaxRetries < 0 {
		return fmt.Errorf("audit.max_retries must be >= 0")
	}

	c.Server.AllowedOrigins = normalizeStringSlice(c.Server.AllowedOrigins)
	c.Server.ProxyHeader = strings.TrimSpace(c.Server.ProxyHeader)
	c.Server.TrustedProxies = normalizeStringSlice(c.Server.TrustedProxies)
	c.Search.IncludeDomains = normalizeStringSlice(c.Search.IncludeDomains)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	return nil
}

func (g *GuardrailsConfig) validate() error {
	if g.MaxPromptChars <= 0 {
		return fmt.Errorf("guardrails.max_prompt_chars must be > 0")
	}
	if g.MaxOutputChars <= 0 {
		return fmt.Errorf("guardrails.max_output_chars must be > 0")
	}
	if g.ToxicityThreshold <= 0 || g.ToxicityThreshold > 1 {
		return fmt.Errorf("guardrails.toxicity_threshold must be in (0,1]")
	}
	if g.WarnToxicityScore <= 0 || g.WarnToxicityScore > g.ToxicityThreshold {
		return fmt.Errorf("guardrails.warn_toxicity_score must be in (0, toxicity_threshold]")
	}
	if g.LogContentChars <= 0 {
		g.LogContentChars = 200
	}
	g.PatternsFile = strings.TrimSpace(g.PatternsFile)
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.body_limit_mb", 1)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.stream_max_duration", "300s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.idempotency_ttl", "30m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("guardrails.max_prompt_chars", 20000)
	v.SetDefault("guardrails.max_output_chars", 50000)
	v.SetDefault("guardrails.toxicity_threshold", 0.7)
	v.SetDefault("guardrails.warn_toxicity_score", 0.5)
	v.SetDefault("guardrails.log_content_chars", 200)
	v.SetDefault("guardrails.patterns_file", "")
	v.SetDefault("guardrails.regional_patterns", true)

	v.SetDefault("audit.webhook_url", "")
	v.SetDefault("audit.auth_header", "")
	v.SetDefault("audit.auth_value", "")
	v.SetDefault("audit.timeout", "5s")
	v.SetDefault("audit.max_retries", 3)
	v.SetDefault("audit.queue_size", 256)

	v.SetDefault("rate_limits.backend", RateLimitBackendMemory)
	v.SetDefault("rate_limits.max_requests", 30)
	v.SetDefault("rate_limits.window", "60s")
	v.SetDefault("rate_limits.sweep_interval", "60s")
	v.SetDefault("rate_limits.shards", 32)
	v.SetDefault("rate_limits.key_prefix", "kereru:rl")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("model.provider", ProviderOpenAI)
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "https://api.together.xyz/v1")
	v.SetDefault("model.model_id", "ashela_ec3d/kereru-ai-demo-fixed")
	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("model.max_tokens", 0)
	v.SetDefault("model.timeout", "60s")
	v.SetDefault("model.max_retries", 1)
	v.SetDefault("model.bedrock.region", "")
	v.SetDefault("model.bedrock.profile", "")
	v.SetDefault("model.bedrock.access_key_id", "")
	v.SetDefault("model.bedrock.secret_access_key", "")
	v.SetDefault("model.bedrock.session_token", "")

	v.SetDefault("search.enabled", true)
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.base_url", "https://api.tavily.com")
	v.SetDefault("search.include_domains", []string{"govt.nz", "co.nz", "org.nz", "ac.nz"})
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.search_depth", "advanced")
	v.SetDefault("search.timeout", "15s")
	v.SetDefault("search.max_retries", 2)

	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("admin.issuer", "kereru-gateway")
	v.SetDefault("admin.token_ttl", "1h")

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")
}

func normalizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clean := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
