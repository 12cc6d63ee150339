package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oscarlaird/gmath/internal/llm/configuration"
	llmerrors "github.com/oscarlaird/gmath/internal/llm/errors"
	"github.com/oscarlaird/gmath/internal/llm/transport"
)

var (
	// ErrBreakerNotFound is returned for keys no request has touched yet.
	ErrBreakerNotFound = errors.New("circuit breaker not found")
	// ErrBreakerLimit is returned once MaxBreakers distinct keys exist.
	ErrBreakerLimit = errors.New("circuit breaker limit reached")
)

const defaultProbeTimeout = 60 * time.Second

// Breakers owns one breaker per provider:model key.
type Breakers struct {
	breakers *shardedBreakers
	config   configuration.CircuitBreakerConfig
	redis    redis.Cmdable
	jitter   bool
	now      func() time.Time
	logger   *slog.Logger
}

// Option customizes Breakers.
type Option func(*Breakers)

// WithProbeGuard coordinates half-open probes across instances through a
// Redis SETNX lease so only one replica tests a recovering provider.
func WithProbeGuard(client redis.Cmdable) Option {
	return func(b *Breakers) { b.redis = client }
}

// WithClock replaces time.Now and disables open-timeout jitter.
func WithClock(now func() time.Time) Option {
	return func(b *Breakers) {
		b.now = now
		b.jitter = false
	}
}

// New creates an empty breaker set.
func New(cfg configuration.CircuitBreakerConfig, opts ...Option) *Breakers {
	b := &Breakers{
		breakers: newShardedBreakers(),
		config:   cfg,
		jitter:   true,
		now:      time.Now,
		logger:   slog.Default().With("component", "circuit_breaker"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Key is the breaker key for a request.
func Key(req *transport.Request) string {
	var sb strings.Builder
	sb.Grow(len(req.Provider) + len(req.Model) + 1)
	sb.WriteString(req.Provider)
	sb.WriteByte(':')
	sb.WriteString(req.Model)
	return sb.String()
}

// Middleware returns the breaker layer for a transport chain.
func (b *Breakers) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			key := Key(req)
			cb, err := b.breakers.getOrCreate(key, func() *circuitBreaker {
				return newCircuitBreaker(b, key)
			}, b.config.MaxBreakers)
			if err != nil {
				b.logger.Warn("circuit breaker limit reached", "key", key, "error", err)
				return nil, err
			}

			allowed, probe, release := cb.allow()
			if !allowed {
				return nil, b.rejection(req, cb)
			}
			defer release()

			if probe && b.redis != nil {
				if !b.acquireProbeGuard(ctx, key) {
					cb.metrics.probeGuardConflicts.Add(1)
					return nil, b.rejection(req, cb)
				}
				defer b.releaseProbeGuard(key)
			}

			resp, err := next.Handle(ctx, req)
			if err != nil {
				if countsAsFailure(ctx, err) {
					cb.recordFailure()
				}
				return nil, err
			}
			cb.recordSuccess()
			return resp, nil
		})
	}
}

// countsAsFailure ignores errors that say nothing about provider health.
func countsAsFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return false
	}
	var valErr *llmerrors.ValidationError
	if errors.As(err, &valErr) {
		return false
	}
	switch llmerrors.Classify(err) {
	case llmerrors.ErrorTypeAuth, llmerrors.ErrorTypePermission, llmerrors.ErrorTypeContent, llmerrors.ErrorTypeValidation:
		return false
	}
	return true
}

func (b *Breakers) rejection(req *transport.Request, cb *circuitBreaker) error {
	return &llmerrors.CircuitBreakerError{
		Provider: req.Provider,
		Model:    req.Model,
		State:    cb.currentState().String(),
		ResetAt:  cb.openDeadline().Unix(),
	}
}

func (b *Breakers) acquireProbeGuard(ctx context.Context, key string) bool {
	ttl := defaultProbeTimeout
	if b.config.OpenTimeout > 0 {
		ttl = 2 * b.config.OpenTimeout
	}
	ok, err := b.redis.SetNX(ctx, "cb:probe:"+key, "1", ttl).Result()
	if err != nil {
		// Redis trouble must not block recovery.
		b.logger.Warn("failed to acquire probe guard", "error", err, "key", key)
		return true
	}
	return ok
}

func (b *Breakers) releaseProbeGuard(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.redis.Del(ctx, "cb:probe:"+key).Err(); err != nil {
		b.logger.Warn("failed to release probe guard", "error", err, "key", key)
	}
}

// State returns the breaker state for key.
func (b *Breakers) State(key string) (CircuitState, error) {
	cb, ok := b.breakers.get(key)
	if !ok {
		return StateClosed, ErrBreakerNotFound
	}
	return cb.currentState(), nil
}

// Reset forces the breaker for key closed.
func (b *Breakers) Reset(key string) error {
	cb, ok := b.breakers.get(key)
	if !ok {
		return ErrBreakerNotFound
	}
	cb.reset()
	return nil
}

// Stats aggregates metrics across breakers.
func (b *Breakers) Stats() Stats {
	stats := Stats{StateCount: map[string]int{
		StateClosed.String():   0,
		StateOpen.String():     0,
		StateHalfOpen.String(): 0,
	}}
	b.breakers.each(stats.add)
	return stats
}
