package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/callbridge/callbridge"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Inference    InferenceConfig    `mapstructure:"inference"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Confidence   ConfidenceConfig   `mapstructure:"confidence"`
	Session      SessionConfig      `mapstructure:"session"`
	Registry     RegistryConfig     `mapstructure:"registry"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// AppConfig stores process-wide settings.
type AppConfig struct {
	LogLevel  string `mapstructure:"log_level"`  // zerolog level name
	LogFormat string `mapstructure:"log_format"` // "json" or "console"
}

// ServerConfig stores HTTP boundary settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// InferenceConfig stores language model adapter settings.
type InferenceConfig struct {
	Provider         string        `mapstructure:"provider"`          // "scripted", "azopenai", "llama"
	Timeout          time.Duration `mapstructure:"timeout"`           // per attempt
	MaxRetries       int           `mapstructure:"max_retries"`       // retries after the first attempt
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`     // base exponential backoff
	MaxConcurrency   int           `mapstructure:"max_concurrency"`   // 0 disables the global cap
	BreakerThreshold int           `mapstructure:"breaker_threshold"` // consecutive failures before opening
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
	SystemPrompt     string        `mapstructure:"system_prompt"`

	Azure AzureConfig `mapstructure:"azure"`
	Llama LlamaConfig `mapstructure:"llama"`
}

// AzureConfig stores Azure OpenAI credentials.
type AzureConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	APIKey      string  `mapstructure:"api_key"`
	Deployment  string  `mapstructure:"deployment"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
	TopP        float32 `mapstructure:"top_p"`
}

// LlamaConfig stores local GGUF model settings.
type LlamaConfig struct {
	ModelPath   string  `mapstructure:"model_path"`
	ContextSize int     `mapstructure:"context_size"`
	GPULayers   int     `mapstructure:"gpu_layers"`
	Threads     int     `mapstructure:"threads"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
	TopP        float32 `mapstructure:"top_p"`
	PoolSize    int     `mapstructure:"pool_size"` // model instances, one in-flight request each
	Template    string  `mapstructure:"template"`  // chat template family, e.g. "gemma" or "chatml"
}

// OrchestratorConfig stores pipeline settings.
type OrchestratorConfig struct {
	ToolTimeout        time.Duration `mapstructure:"tool_timeout"`         // per tool execution
	HistoryTurns       int           `mapstructure:"history_turns"`        // turns included in the prompt
	HistoryTokenBudget int           `mapstructure:"history_token_budget"` // rough token cap for history
	MaxMessageLength   int           `mapstructure:"max_message_length"`   // inbound message limit in characters

	// Safety
	EnableGuardrails bool     `mapstructure:"enable_guardrails"` // redact secrets, enforce allowlist
	AllowedTools     []string `mapstructure:"allowed_tools"`     // empty means every registered tool

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"`
}

// ConfidenceConfig stores the confidence policy weights.
type ConfidenceConfig struct {
	Base             float64 `mapstructure:"base"`
	Floor            float64 `mapstructure:"floor"`
	FailureScore     float64 `mapstructure:"failure_score"`
	UnresolvedWeight float64 `mapstructure:"unresolved_weight"`
	RetryWeight      float64 `mapstructure:"retry_weight"`
	DiagnosticWeight float64 `mapstructure:"diagnostic_weight"`
	DiagnosticCap    int     `mapstructure:"diagnostic_cap"`
}

// SessionConfig stores session store settings.
type SessionConfig struct {
	Backend      string        `mapstructure:"backend"` // "memory", "redis", "libsql"
	TTL          time.Duration `mapstructure:"ttl"`     // idle expiry, 0 disables
	MaxTurns     int           `mapstructure:"max_turns"`
	Capacity     int           `mapstructure:"capacity"` // memory backend only
	SummaryItems int           `mapstructure:"summary_items"`
	SweepEvery   time.Duration `mapstructure:"sweep_every"`

	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
}

// RedisConfig stores redis connection details.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Prefix      string        `mapstructure:"prefix"`
	Distributed bool          `mapstructure:"distributed_lock"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"` // embedded file path
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RegistryConfig points at the tool indirection table.
type RegistryConfig struct {
	Path string `mapstructure:"path"` // empty uses the built-in table
}

// RateLimitConfig stores per-user rate limit settings.
type RateLimitConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Capacity   int           `mapstructure:"capacity"`
	RefillRate time.Duration `mapstructure:"refill_rate"`
}

// MetricsConfig stores prometheus settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.AutomaticEnv()
	// session.redis.addr becomes CALLBRIDGE_SESSION_REDIS_ADDR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("server.addr", internal.DefaultHTTPAddr)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "5s")

	// Inference defaults
	v.SetDefault("inference.provider", "scripted")
	v.SetDefault("inference.timeout", "20s")
	v.SetDefault("inference.max_retries", 2)
	v.SetDefault("inference.retry_backoff", "200ms")
	v.SetDefault("inference.max_concurrency", 1) // one in-flight request per model instance
	v.SetDefault("inference.breaker_threshold", 5)
	v.SetDefault("inference.breaker_cooldown", "30s")
	v.SetDefault("inference.system_prompt", DefaultSystemPrompt)
	v.SetDefault("inference.azure.max_tokens", 512)
	v.SetDefault("inference.azure.temperature", 0.3)
	v.SetDefault("inference.azure.top_p", 0.9)
	v.SetDefault("inference.llama.context_size", 4096)
	v.SetDefault("inference.llama.threads", 4)
	v.SetDefault("inference.llama.max_tokens", 512)
	v.SetDefault("inference.llama.temperature", 0.3)
	v.SetDefault("inference.llama.top_p", 0.9)
	v.SetDefault("inference.llama.pool_size", 1)
	v.SetDefault("inference.llama.template", "chatml")

	// Orchestrator defaults
	v.SetDefault("orchestrator.tool_timeout", "10s")
	v.SetDefault("orchestrator.history_turns", 5)
	v.SetDefault("orchestrator.history_token_budget", 1500)
	v.SetDefault("orchestrator.max_message_length", 1000)
	v.SetDefault("orchestrator.enable_guardrails", true)
	v.SetDefault("orchestrator.allowed_tools", []string{})
	v.SetDefault("orchestrator.enable_tracing", true)

	// Confidence policy: a single retry always costs retry_weight
	v.SetDefault("confidence.base", 0.95)
	v.SetDefault("confidence.floor", 0.05)
	v.SetDefault("confidence.failure_score", 0.1)
	v.SetDefault("confidence.unresolved_weight", 0.35)
	v.SetDefault("confidence.retry_weight", 0.1)
	v.SetDefault("confidence.diagnostic_weight", 0.05)
	v.SetDefault("confidence.diagnostic_cap", 4)

	// Session defaults
	v.SetDefault("session.backend", internal.DefaultSessionKind)
	v.SetDefault("session.ttl", "30m")
	v.SetDefault("session.max_turns", 25)
	v.SetDefault("session.capacity", 10000)
	v.SetDefault("session.summary_items", 8)
	v.SetDefault("session.sweep_every", "5m")
	v.SetDefault("session.redis.addr", "localhost:6379")
	v.SetDefault("session.redis.prefix", "callbridge:session:")
	v.SetDefault("session.redis.distributed_lock", false)
	v.SetDefault("session.redis.lock_ttl", "2m")
	v.SetDefault("session.database.dsn", internal.DefaultDatabaseDSN)
	v.SetDefault("session.database.max_open_conns", 8)

	v.SetDefault("registry.path", "")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.capacity", 10)
	v.SetDefault("ratelimit.refill_rate", "2s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate clamps out-of-range values, logging each adjustment.
func (c *Config) Validate(logger zerolog.Logger) {
	if c.Inference.MaxRetries < 0 {
		logger.Warn().Int("max_retries", c.Inference.MaxRetries).Msg("MaxRetries clamped to minimum of 0")
		c.Inference.MaxRetries = 0
	}
	if c.Inference.MaxRetries > 5 {
		logger.Warn().Int("max_retries", c.Inference.MaxRetries).Msg("MaxRetries clamped to maximum of 5")
		c.Inference.MaxRetries = 5
	}
	if c.Inference.Timeout <= 0 {
		logger.Warn().Dur("timeout", c.Inference.Timeout).Msg("inference timeout reset to 20s")
		c.Inference.Timeout = 20 * time.Second
	}
	if c.Orchestrator.ToolTimeout <= 0 {
		logger.Warn().Dur("tool_timeout", c.Orchestrator.ToolTimeout).Msg("tool timeout reset to 10s")
		c.Orchestrator.ToolTimeout = 10 * time.Second
	}
	if c.Orchestrator.MaxMessageLength < 1 || c.Orchestrator.MaxMessageLength > 1000 {
		logger.Warn().Int("max_message_length", c.Orchestrator.MaxMessageLength).Msg("MaxMessageLength clamped to 1000")
		c.Orchestrator.MaxMessageLength = 1000
	}
	if c.Orchestrator.HistoryTurns < 0 {
		c.Orchestrator.HistoryTurns = 0
	}
	if c.Session.MaxTurns < 1 {
		logger.Warn().Int("max_turns", c.Session.MaxTurns).Msg("MaxTurns clamped to minimum of 1")
		c.Session.MaxTurns = 1
	}
	if c.Confidence.Floor < 0 || c.Confidence.Floor >= c.Confidence.Base {
		logger.Warn().Float64("floor", c.Confidence.Floor).Msg("confidence floor reset to 0")
		c.Confidence.Floor = 0
	}
	if c.Confidence.Base > 1 {
		c.Confidence.Base = 1
	}
}

// DefaultSystemPrompt instructs the model how to call tools.
const DefaultSystemPrompt = `Sen bir telekom müşteri asistanısın. Kısa ve yardımsever yanıt ver.
Bir araç çağırman gerekirse şu formatı kullan:
<|begin_of_tool_code|>
print(arac_adi(parametre=deger))
<|end_of_tool_code|>`
