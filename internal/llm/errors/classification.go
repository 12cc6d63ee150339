package errors

import (
	"context"
	"errors"
	"strings"
)

// Classify maps any error produced by the judge pipeline onto an ErrorType.
// Typed errors win over sentinels, which win over message patterns.
func Classify(err error) ErrorType {
	if err == nil {
		return ""
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		if provErr.Type != "" {
			return provErr.Type
		}
		return ErrorTypeProvider
	}

	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return ErrorTypeRateLimit
	}

	var cbErr *CircuitBreakerError
	if errors.As(err, &cbErr) {
		return ErrorTypeCircuitBreaker
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return ErrorTypeValidation
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, ErrRateLimitExceeded):
		return ErrorTypeRateLimit
	case errors.Is(err, ErrCircuitBreakerOpen):
		return ErrorTypeCircuitBreaker
	case errors.Is(err, ErrProviderUnavailable):
		return ErrorTypeProvider
	case errors.Is(err, ErrMissingAPIKey):
		return ErrorTypeAuth
	}

	return classifyMessage(err.Error())
}

func classifyMessage(msg string) ErrorType {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "rate limit"):
		return ErrorTypeRateLimit
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return ErrorTypeTimeout
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication"):
		return ErrorTypeAuth
	case strings.Contains(msg, "forbidden") || strings.Contains(msg, "permission"):
		return ErrorTypePermission
	case strings.Contains(msg, "quota"):
		return ErrorTypeQuota
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection"):
		return ErrorTypeNetwork
	default:
		return ErrorTypeUnknown
	}
}
