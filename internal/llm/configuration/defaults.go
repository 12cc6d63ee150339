package configuration

import (
	"time"
)

// HTTP constants.
const (
	DefaultMaxIdleConns       = 100
	DefaultIdleTimeoutSeconds = 90
	DefaultHTTPTimeoutSeconds = 30
)

// Provider names. They double as configuration keys.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Retry and circuit breaker constants. The elapsed budget stays below the
// default judge timeout so a retried call still returns a verdict in time.
const (
	DefaultMaxAttempts       = 3
	DefaultMaxElapsedTime    = 8 * time.Second
	DefaultInitialInterval   = 250 * time.Millisecond
	DefaultMaxInterval       = 2 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultFailureThreshold  = 5
	DefaultSuccessThreshold  = 2
	DefaultOpenTimeout       = 30 * time.Second
	DefaultMaxBreakers       = 64
)

// Rate limiting constants.
const (
	DefaultTokensPerSecond = 10
	DefaultBurstSize       = 20
)

// DefaultConfig returns a client configuration with OpenAI, Anthropic and
// Google providers reading their keys from the conventional variables.
func DefaultConfig() *Config {
	return &Config{
		HTTPTimeout: DefaultHTTPTimeoutSeconds * time.Second,
		Providers: map[string]ProviderConfig{
			ProviderOpenAI: {
				Endpoint:  "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
			},
			ProviderAnthropic: {
				Endpoint:  "https://api.anthropic.com/v1",
				APIKeyEnv: "ANTHROPIC_API_KEY",
			},
			ProviderGoogle: {
				APIKeyEnv: "GEMINI_API_KEY",
			},
		},
		Retry: RetryConfig{
			MaxAttempts:     DefaultMaxAttempts,
			MaxElapsedTime:  DefaultMaxElapsedTime,
			InitialInterval: DefaultInitialInterval,
			MaxInterval:     DefaultMaxInterval,
			Multiplier:      DefaultBackoffMultiplier,
			UseJitter:       true,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: DefaultFailureThreshold,
			SuccessThreshold: DefaultSuccessThreshold,
			OpenTimeout:      DefaultOpenTimeout,
			HalfOpenProbes:   1,
			MaxBreakers:      DefaultMaxBreakers,
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			TokensPerSecond: DefaultTokensPerSecond,
			BurstSize:       DefaultBurstSize,
		},
		RedactPrompts: true,
	}
}
