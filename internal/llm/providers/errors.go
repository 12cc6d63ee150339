package providers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	llmerrors "github.com/oscarlaird/gmath/internal/llm/errors"
)

// Provider adapter errors.
var (
	ErrEmptyChoices = errors.New("provider returned no choices")
)

// ServerErrorStatusThreshold is the first HTTP status treated as a server error.
const ServerErrorStatusThreshold = 500

// classifyErrorType derives an ErrorType from the provider error code first
// and the HTTP status second.
func classifyErrorType(statusCode int, errorCode string) llmerrors.ErrorType {
	lowerCode := strings.ToLower(errorCode)
	switch {
	case strings.Contains(lowerCode, "rate") || strings.Contains(lowerCode, "limit"):
		return llmerrors.ErrorTypeRateLimit
	case strings.Contains(lowerCode, "timeout"):
		return llmerrors.ErrorTypeTimeout
	case strings.Contains(lowerCode, "auth") || strings.Contains(lowerCode, "unauthorized"):
		return llmerrors.ErrorTypeAuth
	case strings.Contains(lowerCode, "permission") || strings.Contains(lowerCode, "forbidden"):
		return llmerrors.ErrorTypePermission
	case strings.Contains(lowerCode, "quota"):
		return llmerrors.ErrorTypeQuota
	case strings.Contains(lowerCode, "overloaded"):
		return llmerrors.ErrorTypeProvider
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return llmerrors.ErrorTypeRateLimit
	case http.StatusUnauthorized:
		return llmerrors.ErrorTypeAuth
	case http.StatusForbidden:
		return llmerrors.ErrorTypePermission
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return llmerrors.ErrorTypeTimeout
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return llmerrors.ErrorTypeValidation
	default:
		if statusCode >= ServerErrorStatusThreshold {
			return llmerrors.ErrorTypeProvider
		}
		return llmerrors.ErrorTypeUnknown
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(h http.Header) int {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return secs
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return int(d.Round(time.Second) / time.Second)
		}
	}
	return 0
}
