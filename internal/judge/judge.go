// Package judge asks an LLM whether two mathematical answers are equivalent.
package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oscarlaird/gmath/internal/llm/configuration"
	"github.com/oscarlaird/gmath/internal/llm/transport"
)

// Defaults for the judge call.
const (
	DefaultProvider    = configuration.ProviderOpenAI
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 10
	DefaultTemperature = 0.0
	DefaultTimeout     = 10 * time.Second
)

// ErrUnavailable wraps every failure to obtain a verdict from the model.
var ErrUnavailable = errors.New("semantic judge unavailable")

// Completer sends one chat completion through the LLM pipeline.
type Completer interface {
	Complete(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// Config selects the model and bounds the call.
type Config struct {
	Provider    string        `mapstructure:"provider" json:"provider" validate:"required,oneof=openai anthropic google"`
	Model       string        `mapstructure:"model" json:"model" validate:"required"`
	MaxTokens   int           `mapstructure:"max_tokens" json:"max_tokens" validate:"gt=0"`
	Temperature float64       `mapstructure:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
	Fallback    string        `mapstructure:"fallback" json:"fallback" validate:"oneof=fail_closed fuzzy"`
}

// DefaultConfig returns the judge defaults.
func DefaultConfig() Config {
	return Config{
		Provider:    DefaultProvider,
		Model:       DefaultModel,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		Timeout:     DefaultTimeout,
		Fallback:    "fail_closed",
	}
}

// Judge implements the semantic tier of the grader.
type Judge struct {
	client Completer
	cfg    Config
	logger *slog.Logger
}

// New returns a judge. Zero fields in cfg take the defaults.
func New(client Completer, cfg Config) *Judge {
	def := DefaultConfig()
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Judge{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "judge"),
	}
}

// Equivalent reports whether the model considers the answers equivalent. A
// reply other than CORRECT is a negative verdict, not an error. Transport
// failures and the judge's own timeout come back wrapped in ErrUnavailable;
// cancellation of ctx is returned unchanged.
func (j *Judge) Equivalent(ctx context.Context, userAnswer, correctAnswer string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, j.cfg.Timeout)
	defer cancel()

	req := &transport.Request{
		Provider:     j.cfg.Provider,
		Model:        j.cfg.Model,
		SystemPrompt: SystemPrompt,
		Prompt:       UserPrompt(userAnswer, correctAnswer),
		MaxTokens:    j.cfg.MaxTokens,
		Temperature:  j.cfg.Temperature,
	}
	if key, err := transport.IdempotencyKey(req); err == nil {
		req.IdempotencyKey = key
	}

	resp, err := j.client.Complete(callCtx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	verdict := ParseVerdict(resp.Content)
	if !verdict && !isIncorrect(resp.Content) {
		j.logger.WarnContext(ctx, "unexpected judge reply treated as incorrect",
			"provider", resp.Provider,
			"model", resp.Model,
			"reply_len", len(resp.Content),
		)
	}
	return verdict, nil
}
