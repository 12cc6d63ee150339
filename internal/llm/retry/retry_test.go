package retry

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscarlaird/gmath/internal/llm/configuration"
	llmerrors "github.com/oscarlaird/gmath/internal/llm/errors"
	"github.com/oscarlaird/gmath/internal/llm/transport"
)

func fastConfig() configuration.RetryConfig {
	return configuration.RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func testRequest() *transport.Request {
	return &transport.Request{Provider: "openai", Model: "gpt-4o-mini", Prompt: "p"}
}

// scripted returns the errors in order, then succeeds.
func scripted(calls *atomic.Int32, errs ...error) transport.Handler {
	return transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		n := int(calls.Add(1))
		if n <= len(errs) {
			return nil, errs[n-1]
		}
		return &transport.Response{Content: "CORRECT"}, nil
	})
}

func TestNew_ValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*configuration.RetryConfig)
		wantErr error
	}{
		{"zero_attempts", func(c *configuration.RetryConfig) { c.MaxAttempts = 0 }, errMaxAttemptsInvalid},
		{"zero_initial", func(c *configuration.RetryConfig) { c.InitialInterval = 0 }, errInitialIntervalInvalid},
		{"max_below_initial", func(c *configuration.RetryConfig) { c.MaxInterval = 0 }, errMaxIntervalInvalid},
		{"shrinking_multiplier", func(c *configuration.RetryConfig) { c.Multiplier = 0.5 }, errMultiplierInvalid},
		{"negative_elapsed", func(c *configuration.RetryConfig) { c.MaxElapsedTime = -1 }, errMaxElapsedTimeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fastConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := New(configuration.DefaultConfig().Retry)
	require.NoError(t, err)
}

func TestMiddleware_RetriesTransientThenSucceeds(t *testing.T) {
	r, err := New(fastConfig())
	require.NoError(t, err)

	var calls atomic.Int32
	h := r.Middleware()(scripted(&calls,
		&llmerrors.ProviderError{StatusCode: 503, Type: llmerrors.ErrorTypeProvider},
		&llmerrors.RateLimitError{Provider: "openai"},
	))

	resp, err := h.Handle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "CORRECT", resp.Content)
	assert.Equal(t, int32(3), calls.Load())

	stats := r.Stats()
	assert.Equal(t, int64(3), stats.TotalAttempts)
	assert.Equal(t, int64(1), stats.SuccessfulRetries)
	assert.InDelta(t, 3.0, stats.AverageAttempts, 0.001)
}

func TestMiddleware_StopsOnNonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"auth", &llmerrors.ProviderError{StatusCode: 401, Type: llmerrors.ErrorTypeAuth}},
		{"validation", &llmerrors.ValidationError{Field: "prompt", Message: "required"}},
		{"breaker_open", &llmerrors.CircuitBreakerError{Provider: "openai", State: "open"}},
		{"unknown", errors.New("something odd")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(fastConfig())
			require.NoError(t, err)

			var calls atomic.Int32
			h := r.Middleware()(scripted(&calls, tt.err, tt.err, tt.err))

			_, err = h.Handle(context.Background(), testRequest())
			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestMiddleware_ExhaustsAttempts(t *testing.T) {
	r, err := New(fastConfig())
	require.NoError(t, err)

	transient := &llmerrors.ProviderError{StatusCode: 500, Type: llmerrors.ErrorTypeProvider}
	var calls atomic.Int32
	h := r.Middleware()(scripted(&calls, transient, transient, transient, transient))

	_, err = h.Handle(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.ErrorAs(t, err, new(*llmerrors.ProviderError))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(1), r.Stats().FailedRetries)
}

func TestMiddleware_CancelledDuringBackoff(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialInterval = time.Second
	cfg.MaxInterval = time.Second
	r, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	h := r.Middleware()(transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		cancel()
		return nil, &llmerrors.ProviderError{StatusCode: 503, Type: llmerrors.ErrorTypeProvider}
	}))

	_, err = h.Handle(ctx, testRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMiddleware_AlreadyCancelled(t *testing.T) {
	r, err := New(fastConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	_, err = r.Middleware()(scripted(&calls)).Handle(ctx, testRequest())
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestMiddleware_MaxElapsedTime(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 10
	cfg.InitialInterval = 20 * time.Millisecond
	cfg.MaxInterval = 20 * time.Millisecond
	cfg.MaxElapsedTime = 30 * time.Millisecond
	r, err := New(cfg)
	require.NoError(t, err)

	transient := &llmerrors.ProviderError{StatusCode: 502, Type: llmerrors.ErrorTypeProvider}
	var calls atomic.Int32
	h := r.Middleware()(transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return nil, transient
	}))

	_, err = h.Handle(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Less(t, calls.Load(), int32(10))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate_limit", &llmerrors.RateLimitError{}, true},
		{"provider_timeout", &llmerrors.ProviderError{Type: llmerrors.ErrorTypeTimeout}, true},
		{"provider_quota", &llmerrors.ProviderError{Type: llmerrors.ErrorTypeQuota}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"net_op", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"reset_string", errors.New("read: connection reset by peer"), true},
		{"breaker", &llmerrors.CircuitBreakerError{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestBackoff(t *testing.T) {
	cfg := configuration.RetryConfig{
		MaxAttempts:     5,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     300 * time.Millisecond,
		Multiplier:      2,
	}

	assert.Zero(t, ExponentialBackoff(0, cfg))
	assert.Equal(t, 100*time.Millisecond, ExponentialBackoff(1, cfg))
	assert.Equal(t, 200*time.Millisecond, ExponentialBackoff(2, cfg))
	assert.Equal(t, 300*time.Millisecond, ExponentialBackoff(3, cfg))
	assert.Equal(t, 300*time.Millisecond, ExponentialBackoff(8, cfg))

	cfg.UseJitter = true
	for range 50 {
		d := ExponentialBackoff(3, cfg)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}

	r, err := New(cfg)
	require.NoError(t, err)
	withHint := &llmerrors.ProviderError{Type: llmerrors.ErrorTypeRateLimit, RetryAfter: 2}
	assert.Equal(t, 2*time.Second, r.calculateBackoff(1, withHint))
}
