// Package errors defines the error taxonomy shared by the judge transport
// pipeline. Provider failures are classified into ErrorType values so the
// retry, circuit breaker and logging layers agree on what is transient.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType categorizes judge call failures for retry classification.
type ErrorType string

const (
	// ErrorTypeTimeout indicates request timeout or deadline exceeded (retryable).
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates rate limit exceeded, retry with backoff (retryable).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates network connectivity issues (retryable).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates provider service unavailable (retryable).
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeCircuitBreaker indicates the breaker rejected the call.
	ErrorTypeCircuitBreaker ErrorType = "circuit_breaker"

	// ErrorTypeValidation indicates the request was rejected as malformed.
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeContent indicates content blocked by safety filters.
	ErrorTypeContent ErrorType = "content_filtered"

	// ErrorTypeAuth indicates authentication failed (non-retryable).
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypePermission indicates insufficient permissions (non-retryable).
	ErrorTypePermission ErrorType = "permission_denied"

	// ErrorTypeQuota indicates account quota exceeded (non-retryable).
	ErrorTypeQuota ErrorType = "quota_exceeded"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

var (
	// ErrProviderUnavailable indicates the provider service is down or unreachable.
	ErrProviderUnavailable = errors.New("provider service unavailable")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrCircuitBreakerOpen indicates the circuit breaker is open.
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// ErrUnknownProvider indicates an unknown or unconfigured provider.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidResponse indicates the provider returned an unusable response.
	ErrInvalidResponse = errors.New("invalid provider response")

	// ErrMissingAPIKey indicates a provider was configured without credentials.
	ErrMissingAPIKey = errors.New("missing api key")
)

// ProviderError captures structured error responses from LLM providers.
type ProviderError struct {
	Provider   string    `json:"provider"`
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message"`
	Code       string    `json:"code"`
	Type       ErrorType `json:"type"`
	RetryAfter int       `json:"retry_after"` // seconds
}

// Error formats the provider, status and message.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether the failure is transient.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

// GetRetryAfter implements retry.AfterProvider.
func (e *ProviderError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// RateLimitError is returned when a local or remote limit rejects a call.
type RateLimitError struct {
	Provider   string `json:"provider"`
	RetryAfter int    `json:"retry_after"`
	Limit      int    `json:"limit"`
	LocalLimit bool   `json:"local_limit"`
}

// Error implements error.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %d seconds", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Provider)
}

// GetRetryAfter implements retry.AfterProvider.
func (e *RateLimitError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// Is lets errors.Is(err, ErrRateLimitExceeded) match typed rate limit errors.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// CircuitBreakerError indicates the breaker for a provider/model pair is not
// admitting calls.
type CircuitBreakerError struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	State    string `json:"state"`    // "open" or "half-open"
	ResetAt  int64  `json:"reset_at"` // unix seconds
}

// Error implements error.
func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker %s for %s/%s", e.State, e.Provider, e.Model)
}

// Is lets errors.Is(err, ErrCircuitBreakerOpen) match typed breaker errors.
func (e *CircuitBreakerError) Is(target error) bool {
	return target == ErrCircuitBreakerOpen
}

// ValidationError captures a malformed judge request.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// IsRetryableError reports whether err is worth another attempt.
// Circuit breaker rejections are not: the breaker already decided.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var cbErr *CircuitBreakerError
	if errors.As(err, &cbErr) {
		return false
	}

	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return true
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.IsRetryable()
	}

	return errors.Is(err, ErrProviderUnavailable)
}

// IsRateLimitError identifies rate limiting errors for backoff handling.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return true
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Type == ErrorTypeRateLimit
	}

	return errors.Is(err, ErrRateLimitExceeded)
}

// GetRetryAfter extracts the retry-after hint in seconds, or 0.
func GetRetryAfter(err error) int {
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return rlErr.RetryAfter
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.RetryAfter
	}

	return 0
}
