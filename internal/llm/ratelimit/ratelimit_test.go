package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscarlaird/gmath/internal/llm/configuration"
	llmerrors "github.com/oscarlaird/gmath/internal/llm/errors"
	"github.com/oscarlaird/gmath/internal/llm/transport"
)

func counting(calls *atomic.Int32) transport.Handler {
	return transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return &transport.Response{Content: "CORRECT"}, nil
	})
}

var req = &transport.Request{Provider: "openai", Model: "gpt-4o-mini", Prompt: "p"}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     configuration.RateLimitConfig
		wantErr error
	}{
		{"zero_rate", configuration.RateLimitConfig{Enabled: true, BurstSize: 1}, errTokensPerSecondInvalid},
		{"zero_burst", configuration.RateLimitConfig{Enabled: true, TokensPerSecond: 1}, errBurstSizeInvalid},
		{"disabled_skips_checks", configuration.RateLimitConfig{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMiddleware_BurstThenReject(t *testing.T) {
	l, err := New(configuration.RateLimitConfig{Enabled: true, TokensPerSecond: 0.1, BurstSize: 2})
	require.NoError(t, err)

	var calls atomic.Int32
	h := l.Middleware()(counting(&calls))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	for range 2 {
		_, err := h.Handle(ctx, req)
		require.NoError(t, err)
	}

	_, err = h.Handle(ctx, req)
	var rlErr *llmerrors.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.True(t, rlErr.LocalLimit)
	assert.GreaterOrEqual(t, rlErr.RetryAfter, 1)
	assert.True(t, llmerrors.IsRetryableError(err))
	assert.Equal(t, int32(2), calls.Load())

	stats := l.Stats()
	assert.Equal(t, 1, stats.Keys)
	assert.Equal(t, int64(2), stats.Allowed)
	assert.Equal(t, int64(1), stats.Rejected)
}

func TestMiddleware_WaitsWithinDeadline(t *testing.T) {
	l, err := New(configuration.RateLimitConfig{Enabled: true, TokensPerSecond: 50, BurstSize: 1})
	require.NoError(t, err)

	var calls atomic.Int32
	h := l.Middleware()(counting(&calls))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for range 3 {
		_, err := h.Handle(ctx, req)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(2), l.Stats().Delayed)
}

func TestMiddleware_SeparateBucketsPerModel(t *testing.T) {
	l, err := New(configuration.RateLimitConfig{Enabled: true, TokensPerSecond: 0.1, BurstSize: 1})
	require.NoError(t, err)

	var calls atomic.Int32
	h := l.Middleware()(counting(&calls))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = h.Handle(ctx, req)
	require.NoError(t, err)
	_, err = h.Handle(ctx, &transport.Request{Provider: "openai", Model: "gpt-4o", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, 2, l.Stats().Keys)
}

func TestMiddleware_Disabled(t *testing.T) {
	l, err := New(configuration.RateLimitConfig{})
	require.NoError(t, err)

	var calls atomic.Int32
	h := l.Middleware()(counting(&calls))
	for range 100 {
		_, err := h.Handle(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(100), calls.Load())
	assert.Zero(t, l.Stats().Keys)
}
