// Package configuration holds the typed settings of the judge transport
// pipeline: provider credentials and endpoints plus the resilience layers.
package configuration

import (
	"net/http"
	"time"
)

// Config configures the LLM client used by the semantic judge.
type Config struct {
	HTTPTimeout time.Duration `mapstructure:"http_timeout" json:"http_timeout" validate:"gte=0"`
	HTTPClient  *http.Client  `mapstructure:"-" json:"-"`

	Providers map[string]ProviderConfig `mapstructure:"providers" json:"providers" validate:"dive"`

	Retry          RetryConfig          `mapstructure:"retry" json:"retry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker" json:"circuit_breaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit" json:"rate_limit"`

	// RedactPrompts keeps answers out of request logs.
	RedactPrompts bool `mapstructure:"redact_prompts" json:"redact_prompts"`
}

// ProviderConfig holds provider endpoint, credentials and extra headers.
type ProviderConfig struct {
	Endpoint  string            `mapstructure:"endpoint" json:"endpoint" validate:"omitempty,url"`
	APIKey    string            `mapstructure:"api_key" json:"-"`
	APIKeyEnv string            `mapstructure:"api_key_env" json:"api_key_env"`
	Timeout   time.Duration     `mapstructure:"timeout" json:"timeout" validate:"gte=0"`
	Headers   map[string]string `mapstructure:"headers" json:"headers"`
}

// RetryConfig controls retries of transient provider failures.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" json:"max_attempts" validate:"gte=1"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time" json:"max_elapsed_time" validate:"gte=0"`
	InitialInterval time.Duration `mapstructure:"initial_interval" json:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `mapstructure:"max_interval" json:"max_interval" validate:"gtefield=InitialInterval"`
	Multiplier      float64       `mapstructure:"multiplier" json:"multiplier" validate:"gte=1"`
	UseJitter       bool          `mapstructure:"use_jitter" json:"use_jitter"`
}

// CircuitBreakerConfig controls per provider/model fail-fast behavior.
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled" json:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold" json:"failure_threshold" validate:"gte=1"`
	SuccessThreshold int           `mapstructure:"success_threshold" json:"success_threshold" validate:"gte=1"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout" json:"open_timeout" validate:"gt=0"`
	HalfOpenProbes   int           `mapstructure:"half_open_probes" json:"half_open_probes" validate:"gte=1"`
	MaxBreakers      int           `mapstructure:"max_breakers" json:"max_breakers" validate:"gte=1"`
}

// RateLimitConfig configures the in-process token bucket guarding the judge.
type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled" json:"enabled"`
	TokensPerSecond float64 `mapstructure:"tokens_per_second" json:"tokens_per_second" validate:"gt=0"`
	BurstSize       int     `mapstructure:"burst_size" json:"burst_size" validate:"gte=1"`
}
