package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/saitejavellanki/mathres/internal/backend"
	"github.com/saitejavellanki/mathres/internal/providers"
	"github.com/saitejavellanki/mathres/internal/queue"
)

// Config holds mathres configuration.
// Stored at: ~/.mathres/config.yaml
type Config struct {
	Server       ServerCfg                 `mapstructure:"server" yaml:"server"`
	Backend      BackendCfg                `mapstructure:"backend" yaml:"backend"`
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers" validate:"dive"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Extract      ExtractCfg                `mapstructure:"extract" yaml:"extract"`
	Store        StoreCfg                  `mapstructure:"store" yaml:"store"`
	Queue        QueueCfg                  `mapstructure:"queue" yaml:"queue"`
	Persist      PersistCfg                `mapstructure:"persist" yaml:"persist"`
	LogLevel     string                    `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         string        `mapstructure:"port" yaml:"port" validate:"required,numeric"`
	CORSOrigins  []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gte=0"`
}

// BackendCfg configures the results backend client.
type BackendCfg struct {
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" validate:"gte=0"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type        string        `mapstructure:"type" yaml:"type" validate:"oneof=openai ollama anthropic mock"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR}
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url,omitempty" validate:"omitempty,url"`
	RateLimit   int           `mapstructure:"rate_limit" yaml:"rate_limit" validate:"gte=0"` // Requests per minute
	Temperature float64       `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=0"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty" validate:"gte=0"`
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	LLMProvider         string `mapstructure:"llm_provider" yaml:"llm_provider" validate:"required"`
	RestructureProvider string `mapstructure:"restructure_provider" yaml:"restructure_provider,omitempty"`
	MarkingProvider     string `mapstructure:"marking_provider" yaml:"marking_provider,omitempty"`
	MaxWorkers          int    `mapstructure:"max_workers" yaml:"max_workers" validate:"min=1"`
}

// ExtractCfg toggles the optional extraction passes.
type ExtractCfg struct {
	Repair   bool `mapstructure:"repair" yaml:"repair"`
	Validate bool `mapstructure:"validate" yaml:"validate"`
}

// StoreCfg configures local SQL persistence.
type StoreCfg struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=none sqlite postgres"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"` // Empty sqlite DSN uses ~/.mathres/data/mathres.db
}

// QueueCfg configures the Redis job queue. An empty URL disables it.
type QueueCfg struct {
	RedisURL   string        `mapstructure:"redis_url" yaml:"redis_url"`
	Key        string        `mapstructure:"key" yaml:"key"`
	PopTimeout time.Duration `mapstructure:"pop_timeout" yaml:"pop_timeout" validate:"gte=0"`
}

// PersistCfg selects where pipeline results are written.
type PersistCfg struct {
	Target string `mapstructure:"target" yaml:"target" validate:"oneof=backend store both none"`
}

// DefaultCORSOrigins are the front ends allowed to call the API.
var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"https://transgrade.transpoze.ai",
	"http://localhost:3001",
	"https://transpoze.ai",
	"https://*.transpoze.ai",
	"http://127.0.0.1:3000",
	"http://localhost:8000",
	"https://localhost:3000",
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{
			Host:         "0.0.0.0",
			Port:         "8888",
			CORSOrigins:  append([]string(nil), DefaultCORSOrigins...),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
		},
		Backend: BackendCfg{
			BaseURL:    backend.DefaultBaseURL,
			Timeout:    60 * time.Second,
			MaxRetries: 2,
			RetryDelay: 500 * time.Millisecond,
		},
		LLMProviders: map[string]LLMProviderCfg{
			"openai": {
				Type:        "openai",
				Model:       "gpt-4o-mini",
				APIKey:      "${OPENAI_API_KEY}",
				RateLimit:   60,
				Temperature: 0.1,
				MaxTokens:   4000,
				Enabled:     true,
			},
			"anthropic": {
				Type:        "anthropic",
				Model:       "claude-sonnet-4-5",
				APIKey:      "${ANTHROPIC_API_KEY}",
				RateLimit:   50,
				Temperature: 0.1,
				MaxTokens:   4000,
				Enabled:     true,
			},
			"ollama": {
				Type:        "ollama",
				Model:       "llama3.2",
				BaseURL:     providers.DefaultOllamaURL,
				Temperature: 0.1,
				MaxTokens:   2000,
				Enabled:     false,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider: "openai",
			MaxWorkers:  4,
		},
		Extract: ExtractCfg{
			Repair:   true,
			Validate: true,
		},
		Store: StoreCfg{
			Driver: "none",
		},
		Queue: QueueCfg{
			Key:        queue.DefaultKey,
			PopTimeout: 5 * time.Second,
		},
		Persist: PersistCfg{
			Target: "backend",
		},
		LogLevel: "info",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if (c.Persist.Target == "store" || c.Persist.Target == "both") && c.Store.Driver == "none" {
		return fmt.Errorf("invalid config: persist.target %q needs store.driver sqlite or postgres", c.Persist.Target)
	}
	if _, ok := c.LLMProviders[c.Defaults.LLMProvider]; !ok {
		return fmt.Errorf("invalid config: defaults.llm_provider %q is not in llm_providers", c.Defaults.LLMProvider)
	}
	for _, name := range []string{c.Defaults.RestructureProvider, c.Defaults.MarkingProvider} {
		if _, ok := c.LLMProviders[name]; name != "" && !ok {
			return fmt.Errorf("invalid config: provider %q is not in llm_providers", name)
		}
	}
	return nil
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// RestructureProviderName returns the provider for the restructure agent.
func (c *Config) RestructureProviderName() string {
	if c.Defaults.RestructureProvider != "" {
		return c.Defaults.RestructureProvider
	}
	return c.Defaults.LLMProvider
}

// MarkingProviderName returns the provider for the marking agent.
func (c *Config) MarkingProviderName() string {
	if c.Defaults.MarkingProvider != "" {
		return c.Defaults.MarkingProvider
	}
	return c.Defaults.LLMProvider
}

// SlogLevel maps log_level to a slog level. Unknown values are info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
