package retry

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/oscarlaird/gmath/internal/llm/configuration"
)

// calculateBackoff prefers the provider's Retry-After over exponential backoff.
func (r *Retrier) calculateBackoff(attempt int, err error) time.Duration {
	if retryAfter := extractRetryAfter(err); retryAfter > 0 {
		return retryAfter
	}
	return r.exponentialBackoff(attempt)
}

func (r *Retrier) exponentialBackoff(attempt int) time.Duration {
	return ExponentialBackoff(attempt, r.config)
}

func extractRetryAfter(err error) time.Duration {
	var provider AfterProvider
	if errors.As(err, &provider) {
		return provider.GetRetryAfter()
	}
	return 0
}

// ExponentialBackoff returns the delay before attempt+1: InitialInterval
// multiplied per attempt and capped at MaxInterval, with full jitter when
// enabled. Non-positive attempts yield zero.
func ExponentialBackoff(attempt int, config configuration.RetryConfig) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := config.InitialInterval
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * config.Multiplier)
		if backoff > config.MaxInterval {
			backoff = config.MaxInterval
			break
		}
	}

	if config.UseJitter {
		jitterMs := rand.Int64N(backoff.Milliseconds() + 1) // #nosec G404 -- non-cryptographic jitter
		return time.Duration(jitterMs) * time.Millisecond
	}
	return backoff
}
