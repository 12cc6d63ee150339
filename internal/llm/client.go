// Package llm assembles the judge transport pipeline: provider adapters at
// the core, wrapped by rate limiting, retry, circuit breaking and request
// logging.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oscarlaird/gmath/internal/llm/circuitbreaker"
	"github.com/oscarlaird/gmath/internal/llm/configuration"
	llmerrors "github.com/oscarlaird/gmath/internal/llm/errors"
	"github.com/oscarlaird/gmath/internal/llm/providers"
	"github.com/oscarlaird/gmath/internal/llm/ratelimit"
	"github.com/oscarlaird/gmath/internal/llm/retry"
	"github.com/oscarlaird/gmath/internal/llm/transport"
)

// Client sends judge requests through the resilience pipeline.
type Client struct {
	handler  transport.Handler
	retrier  *retry.Retrier
	breakers *circuitbreaker.Breakers
	limiter  *ratelimit.Limiter
	closers  []func() error
}

type clientOptions struct {
	probeGuard redis.Cmdable
	core       transport.Handler
}

// Option customizes NewClient.
type Option func(*clientOptions)

// WithProbeGuard shares circuit breaker half-open probes across replicas.
func WithProbeGuard(client redis.Cmdable) Option {
	return func(o *clientOptions) { o.probeGuard = client }
}

// WithCoreHandler replaces the provider handlers, keeping every middleware.
func WithCoreHandler(h transport.Handler) Option {
	return func(o *clientOptions) { o.core = h }
}

// NewClient builds the pipeline. Call-level layers (logging, circuit breaker)
// see one logical call; attempt-level layers (rate limit, provider) run once
// per retry attempt.
func NewClient(ctx context.Context, cfg *configuration.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{}

	core := o.core
	if core == nil {
		var err error
		core, err = c.buildCore(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	limiter, err := ratelimit.New(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	c.limiter = limiter

	retrier, err := retry.New(cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize retry middleware: %w", err)
	}
	c.retrier = retrier

	callMiddlewares := []transport.Middleware{NewLoggingMiddleware(nil, cfg.RedactPrompts)}
	if cfg.CircuitBreaker.Enabled {
		var cbOpts []circuitbreaker.Option
		if o.probeGuard != nil {
			cbOpts = append(cbOpts, circuitbreaker.WithProbeGuard(o.probeGuard))
		}
		c.breakers = circuitbreaker.New(cfg.CircuitBreaker, cbOpts...)
		callMiddlewares = append(callMiddlewares, c.breakers.Middleware())
	}

	attempt := transport.Chain(core, limiter.Middleware())
	c.handler = transport.Chain(retrier.Middleware()(attempt), callMiddlewares...)
	return c, nil
}

func (c *Client) buildCore(ctx context.Context, cfg *configuration.Config) (transport.Handler, error) {
	resolved := ResolveAPIKeys(cfg.Providers)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        configuration.DefaultMaxIdleConns,
				IdleConnTimeout:     configuration.DefaultIdleTimeoutSeconds * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
			Timeout: cfg.HTTPTimeout,
		}
	}
	httpCore := transport.NewHTTPHandler(httpClient, providers.NewRouter(resolved))

	byProvider := map[string]transport.Handler{}
	if google, ok := resolved[configuration.ProviderGoogle]; ok {
		if google.APIKey == "" {
			byProvider[configuration.ProviderGoogle] = transport.HandlerFunc(
				func(context.Context, *transport.Request) (*transport.Response, error) {
					return nil, fmt.Errorf("%s: %w", configuration.ProviderGoogle, llmerrors.ErrMissingAPIKey)
				})
		} else {
			gemini, err := providers.NewGeminiHandler(ctx, google)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize gemini: %w", err)
			}
			c.closers = append(c.closers, gemini.Close)
			byProvider[configuration.ProviderGoogle] = gemini
		}
	}

	return transport.ProviderSwitch(httpCore, byProvider), nil
}

// ResolveAPIKeys fills empty APIKey fields from each provider's APIKeyEnv.
func ResolveAPIKeys(in map[string]configuration.ProviderConfig) map[string]configuration.ProviderConfig {
	out := make(map[string]configuration.ProviderConfig, len(in))
	for name, pc := range in {
		if pc.APIKey == "" && pc.APIKeyEnv != "" {
			pc.APIKey = strings.TrimSpace(os.Getenv(pc.APIKeyEnv))
		}
		out[name] = pc
	}
	return out
}

// Complete sends one request through the pipeline.
func (c *Client) Complete(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return c.handler.Handle(ctx, req)
}

// Stats groups the pipeline counters.
type Stats struct {
	Retry          retry.Stats           `json:"retry"`
	CircuitBreaker *circuitbreaker.Stats `json:"circuit_breaker,omitempty"`
	RateLimit      ratelimit.Stats       `json:"rate_limit"`
}

// Stats returns a snapshot of every layer's counters.
func (c *Client) Stats() Stats {
	s := Stats{
		Retry:     c.retrier.Stats(),
		RateLimit: c.limiter.Stats(),
	}
	if c.breakers != nil {
		cb := c.breakers.Stats()
		s.CircuitBreaker = &cb
	}
	return s
}

// Close releases SDK clients.
func (c *Client) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
