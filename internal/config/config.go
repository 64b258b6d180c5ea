package config

import (
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Quota      QuotaConfig      `yaml:"quota" mapstructure:"quota"`
	Gate       GateConfig       `yaml:"gate" mapstructure:"gate"`
	Classify   ClassifyConfig   `yaml:"classify" mapstructure:"classify"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeout int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// AuthConfig holds the secrets used to authenticate callers.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	AgentKey  string `yaml:"agent_key" mapstructure:"agent_key"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds settings for OpenAI-compatible completion endpoints.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ExtractConfig configures the extraction adapter.
type ExtractConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	MaxInputChars int    `yaml:"max_input_chars" mapstructure:"max_input_chars"`
	MaxTokens     int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PricingConfig holds per-model token pricing.
type PricingConfig struct {
	Models map[string]ModelPricing `yaml:"models" mapstructure:"models"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// QuotaConfig holds daily ceilings.
type QuotaConfig struct {
	TaskDailyLimit       int `yaml:"task_daily_limit" mapstructure:"task_daily_limit"`
	VerifyUserDailyLimit int `yaml:"verify_user_daily_limit" mapstructure:"verify_user_daily_limit"`
	VerifyIPDailyLimit   int `yaml:"verify_ip_daily_limit" mapstructure:"verify_ip_daily_limit"`
}

// GateConfig holds confidence thresholds.
type GateConfig struct {
	CandidateMinConfidence  float64 `yaml:"candidate_min_confidence" mapstructure:"candidate_min_confidence"`
	ContributeMinConfidence float64 `yaml:"contribute_min_confidence" mapstructure:"contribute_min_confidence"`
}

// ClassifyConfig points at an optional rules override.
type ClassifyConfig struct {
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
}

// RedisConfig configures the reference-data snapshot cache. An empty Addr
// keeps snapshots in process memory.
type RedisConfig struct {
	Addr             string `yaml:"addr" mapstructure:"addr"`
	Password         string `yaml:"password" mapstructure:"password"`
	DB               int    `yaml:"db" mapstructure:"db"`
	SnapshotTTLHours int    `yaml:"snapshot_ttl_hours" mapstructure:"snapshot_ttl_hours"`
}

// RetryConfig configures retries for outbound calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// FetchConfig configures outbound page fetches.
type FetchConfig struct {
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// MonitoringConfig configures the background health checker. A zero
// threshold disables its alert.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleTaskHours       int     `yaml:"stale_task_hours" mapstructure:"stale_task_hours"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	RepeatAfterMins      int     `yaml:"repeat_after_mins" mapstructure:"repeat_after_mins"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml, if present, and the
// environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. Unlike the default lookup,
// a named file that does not exist is an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("POLICY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 120)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.agent_key", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("extract.provider", "anthropic")
	v.SetDefault("extract.max_input_chars", 10000)
	v.SetDefault("extract.max_tokens", 2048)
	v.SetDefault("quota.task_daily_limit", 20)
	v.SetDefault("quota.verify_user_daily_limit", 50)
	v.SetDefault("quota.verify_ip_daily_limit", 50)
	v.SetDefault("gate.candidate_min_confidence", 0.70)
	v.SetDefault("gate.contribute_min_confidence", 0.90)
	v.SetDefault("classify.rules_path", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.snapshot_ttl_hours", 24)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; PolicyTracker/1.0)")
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.requests_per_second", 2.0)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.stale_task_hours", 6)
	v.SetDefault("monitoring.cost_threshold_usd", 0.0)
	v.SetDefault("monitoring.repeat_after_mins", 60)
	v.SetDefault("monitoring.webhook_url", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Pricing.Models) == 0 {
		cfg.Pricing.Models = DefaultPricing()
	}

	return &cfg, nil
}

// DefaultPricing returns built-in token rates (USD per million tokens).
func DefaultPricing() map[string]ModelPricing {
	return map[string]ModelPricing{
		"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
		"gemini-2.0-flash":           {Input: 0.10, Output: 0.40},
	}
}

// Validate checks that the settings a command depends on are present.
func (c *Config) Validate(mode string) error {
	var missing []string

	needStore := func() {
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			missing = append(missing, "store.driver must be postgres or sqlite")
			return
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}

	switch mode {
	case "serve":
		needStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			missing = append(missing, "server.port must be between 1 and 65535")
		}
		if c.Auth.JWTSecret == "" {
			missing = append(missing, "auth.jwt_secret is required")
		}
		if c.Auth.AgentKey == "" {
			missing = append(missing, "auth.agent_key is required")
		}
		switch c.Extract.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				missing = append(missing, "anthropic.key is required")
			}
		case "openai":
			if c.OpenAI.Key == "" {
				missing = append(missing, "openai.key is required")
			}
		default:
			missing = append(missing, "extract.provider must be anthropic or openai")
		}
	case "token":
		if c.Auth.JWTSecret == "" {
			missing = append(missing, "auth.jwt_secret is required")
		}
	default:
		needStore()
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
