// Package retry retries transient judge failures with capped exponential
// backoff and full jitter, honoring provider Retry-After hints.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/oscarlaird/gmath/internal/llm/configuration"
	llmerrors "github.com/oscarlaird/gmath/internal/llm/errors"
	"github.com/oscarlaird/gmath/internal/llm/transport"
)

var (
	errMaxAttemptsInvalid     = errors.New("maxAttempts must be greater than 0")
	errInitialIntervalInvalid = errors.New("initialInterval must be greater than 0")
	errMaxIntervalInvalid     = errors.New("maxInterval must be >= initialInterval")
	errMultiplierInvalid      = errors.New("multiplier must be >= 1.0")
	errMaxElapsedTimeInvalid  = errors.New("maxElapsedTime must be >= 0")

	// ErrRetriesExhausted wraps the last error once no attempts remain.
	ErrRetriesExhausted = errors.New("all retries exhausted")
)

// AfterProvider is implemented by errors that carry a server-suggested delay.
type AfterProvider interface {
	GetRetryAfter() time.Duration
}

// Retrier holds the retry policy and its counters.
type Retrier struct {
	config configuration.RetryConfig
	logger *slog.Logger
	stats  retryStats
}

// New validates cfg and returns a Retrier.
func New(cfg configuration.RetryConfig) (*Retrier, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, cfg.MaxAttempts)
	}
	if cfg.InitialInterval <= 0 {
		return nil, fmt.Errorf("%w, got %v", errInitialIntervalInvalid, cfg.InitialInterval)
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		return nil, fmt.Errorf("%w, MaxInterval: %v, InitialInterval: %v", errMaxIntervalInvalid, cfg.MaxInterval, cfg.InitialInterval)
	}
	if cfg.Multiplier < 1.0 {
		return nil, fmt.Errorf("%w, got %f", errMultiplierInvalid, cfg.Multiplier)
	}
	if cfg.MaxElapsedTime < 0 {
		return nil, fmt.Errorf("%w, got %v", errMaxElapsedTimeInvalid, cfg.MaxElapsedTime)
	}

	return &Retrier{
		config: cfg,
		logger: slog.Default().With("component", "retry"),
	}, nil
}

// Middleware returns the retry layer for a transport chain.
func (r *Retrier) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			var lastErr error
			attempts := 0
			startTime := time.Now()

			for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
				attempts = attempt
				resp, err := next.Handle(ctx, req)
				r.stats.totalAttempts.Add(1)

				if err == nil {
					if attempt > 1 {
						r.stats.successfulRetries.Add(1)
						r.logger.Info("request succeeded after retry",
							"attempt", attempt,
							"provider", req.Provider,
							"model", req.Model)
					} else {
						r.stats.successfulFirstAttempts.Add(1)
					}
					return resp, nil
				}

				// The caller gave up; nothing to retry for.
				if ctx.Err() != nil {
					return nil, err
				}

				if !IsRetryable(err) {
					r.logger.Debug("non-retryable error",
						"error", err,
						"attempt", attempt,
						"provider", req.Provider)
					return nil, err
				}
				lastErr = err

				if attempt == r.config.MaxAttempts {
					break
				}

				backoff := r.calculateBackoff(attempt, err)
				if r.config.MaxElapsedTime > 0 {
					elapsed := time.Since(startTime)
					if elapsed+backoff > r.config.MaxElapsedTime {
						// A long Retry-After may not fit; fall back to plain exponential.
						backoff = r.exponentialBackoff(attempt)
						if elapsed+backoff > r.config.MaxElapsedTime {
							r.logger.Warn("max elapsed time exceeded",
								"elapsed", elapsed,
								"attempts", attempt,
								"last_error", err)
							break
						}
					}
				}
				r.recordBackoff(backoff)

				r.logger.Debug("retrying after backoff",
					"attempt", attempt,
					"backoff", backoff,
					"error", err,
					"provider", req.Provider)

				timer := time.NewTimer(backoff)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				}
			}

			r.stats.failedRetries.Add(1)
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
		})
	}
}

// IsRetryable reports whether another attempt could succeed. Breaker
// rejections and request validation failures never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var cbErr *llmerrors.CircuitBreakerError
	if errors.As(err, &cbErr) {
		return false
	}

	var valErr *llmerrors.ValidationError
	if errors.As(err, &valErr) {
		return false
	}

	var rlErr *llmerrors.RateLimitError
	if errors.As(err, &rlErr) {
		return true
	}

	var provErr *llmerrors.ProviderError
	if errors.As(err, &provErr) {
		return provErr.IsRetryable()
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, llmerrors.ErrProviderUnavailable) {
		return true
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	return isNetworkError(err)
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var netErr net.Error
		if errors.As(urlErr.Err, &netErr) && netErr.Timeout() {
			return true
		}
		return isNetworkErrorByString(urlErr.Err.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return isNetworkErrorByString(err.Error())
}

var networkErrorIndicators = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"eof",
}

func isNetworkErrorByString(errStr string) bool {
	lowered := strings.ToLower(errStr)
	for _, indicator := range networkErrorIndicators {
		if strings.Contains(lowered, indicator) {
			return true
		}
	}
	return false
}
