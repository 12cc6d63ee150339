// Package ratelimit throttles judge calls with per provider:model token
// buckets. A call that cannot get a token before its deadline fails with a
// RateLimitError instead of waiting past it.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/oscarlaird/gmath/internal/llm/configuration"
	llmerrors "github.com/oscarlaird/gmath/internal/llm/errors"
	"github.com/oscarlaird/gmath/internal/llm/transport"
)

var (
	errTokensPerSecondInvalid = errors.New("tokens_per_second must be greater than 0")
	errBurstSizeInvalid       = errors.New("burst_size must be greater than 0")
)

// Limiter holds one token bucket per key.
type Limiter struct {
	config configuration.RateLimitConfig

	mu       sync.RWMutex
	limiters map[string]*rate.Limiter

	allowed  atomic.Int64
	delayed  atomic.Int64
	rejected atomic.Int64

	logger *slog.Logger
}

// New validates cfg and returns a Limiter. A disabled config yields a
// Limiter whose middleware passes everything through.
func New(cfg configuration.RateLimitConfig) (*Limiter, error) {
	if cfg.Enabled {
		if cfg.TokensPerSecond <= 0 {
			return nil, fmt.Errorf("%w, got %v", errTokensPerSecondInvalid, cfg.TokensPerSecond)
		}
		if cfg.BurstSize <= 0 {
			return nil, fmt.Errorf("%w, got %d", errBurstSizeInvalid, cfg.BurstSize)
		}
	}
	return &Limiter{
		config:   cfg,
		limiters: make(map[string]*rate.Limiter),
		logger:   slog.Default().With("component", "ratelimit"),
	}, nil
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[key]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limiters[key]; ok {
		return lim
	}
	lim = rate.NewLimiter(rate.Limit(l.config.TokensPerSecond), l.config.BurstSize)
	l.limiters[key] = lim
	return lim
}

// Middleware returns the throttling layer for a transport chain.
func (l *Limiter) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		if !l.config.Enabled {
			return next
		}
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			key := req.Provider + ":" + req.Model
			if err := l.wait(ctx, key, req.Provider); err != nil {
				return nil, err
			}
			return next.Handle(ctx, req)
		})
	}
}

func (l *Limiter) wait(ctx context.Context, key, provider string) error {
	lim := l.bucket(key)
	now := time.Now()
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		l.rejected.Add(1)
		return &llmerrors.RateLimitError{Provider: provider, Limit: l.config.BurstSize, LocalLimit: true}
	}

	delay := res.DelayFrom(now)
	if delay == 0 {
		l.allowed.Add(1)
		return nil
	}

	if deadline, ok := ctx.Deadline(); ok && now.Add(delay).After(deadline) {
		// Hand the token back so a rejected call does not drain the bucket.
		res.CancelAt(now)
		l.rejected.Add(1)
		retryAfter := int(math.Ceil(delay.Seconds()))
		l.logger.Debug("judge call rate limited", "key", key, "delay", delay)
		return &llmerrors.RateLimitError{
			Provider:   provider,
			Limit:      int(l.config.TokensPerSecond),
			RetryAfter: max(retryAfter, 1),
			LocalLimit: true,
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		l.delayed.Add(1)
		return nil
	case <-ctx.Done():
		res.Cancel()
		return ctx.Err()
	}
}

// Stats is a snapshot of limiter activity.
type Stats struct {
	Keys     int   `json:"keys"`
	Allowed  int64 `json:"allowed"`
	Delayed  int64 `json:"delayed"`
	Rejected int64 `json:"rejected"`
}

// Stats returns the current counters.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	keys := len(l.limiters)
	l.mu.RUnlock()
	return Stats{
		Keys:     keys,
		Allowed:  l.allowed.Load(),
		Delayed:  l.delayed.Load(),
		Rejected: l.rejected.Load(),
	}
}
