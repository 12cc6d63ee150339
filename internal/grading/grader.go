// Package grading decides whether a free-form mathematical answer matches a
// reference. Grading runs through tiers of increasing cost: a verdict cache,
// a syntactic comparison, an instructor-approved list and finally a semantic
// judge backed by an LLM.
package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oscarlaird/gmath/internal/verdictcache"
)

// Tier names the step that produced a verdict.
type Tier string

const (
	TierCache      Tier = "cache"
	TierExact      Tier = "exact"
	TierAcceptable Tier = "acceptable"
	TierSemantic   Tier = "semantic"
	TierFallback   Tier = "fallback"
)

// FallbackPolicy decides the verdict when the semantic judge fails.
type FallbackPolicy string

const (
	// FallbackFailClosed grades the answer as incorrect.
	FallbackFailClosed FallbackPolicy = "fail_closed"
	// FallbackFuzzy grades with FuzzyMatch.
	FallbackFuzzy FallbackPolicy = "fuzzy"
)

// Default in-process cache bounds used when no cache is supplied.
const (
	DefaultCacheEntries = 10000
	DefaultCacheTTL     = 24 * time.Hour
)

// maxSharedRetries bounds how often a caller re-joins a judge call after the
// caller that started it went away.
const maxSharedRetries = 2

var (
	// ErrNoJudge is reported to the fallback policy when the grader was
	// built without a semantic judge.
	ErrNoJudge = errors.New("no semantic judge configured")

	errUnknownFallback = errors.New("unknown fallback policy")

	// errCallerGone marks a shared judge call whose starting caller's context
	// ended before the judge answered.
	errCallerGone = errors.New("judge call abandoned by its caller")
)

// Judge decides mathematical equivalence when the syntactic tiers cannot.
type Judge interface {
	Equivalent(ctx context.Context, userAnswer, correctAnswer string) (bool, error)
}

// VerdictCache is the subset of verdictcache.Cache the grader needs.
type VerdictCache interface {
	Get(ctx context.Context, key string) (verdict, found bool, err error)
	Set(ctx context.Context, key string, verdict bool) error
}

// Request is one answer to grade.
type Request struct {
	UserAnswer        string
	CorrectAnswer     Answer
	AcceptableAnswers []string
}

// Validate reports a missing user or reference answer.
func (r Request) Validate() error {
	if r.UserAnswer == "" {
		return &ValidationError{Field: "userAnswer", Message: "is required"}
	}
	if r.CorrectAnswer.IsZero() {
		return &ValidationError{Field: "correctAnswer", Message: "is required"}
	}
	return nil
}

// Result is a verdict and the tier that produced it.
type Result struct {
	IsCorrect bool
	Tier      Tier
	CacheKey  string
	Elapsed   time.Duration
}

// ValidationError rejects a request before any tier runs.
type ValidationError struct {
	Field   string
	Message string
}

// Error reads as "<field> <message>".
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Option configures a Grader.
type Option func(*Grader)

// WithFallback sets the judge failure policy.
func WithFallback(p FallbackPolicy) Option {
	return func(g *Grader) { g.fallback = p }
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Grader) { g.logger = l }
}

// Grader sequences the grading tiers. It is safe for concurrent use.
type Grader struct {
	cache    VerdictCache
	judge    Judge
	fallback FallbackPolicy
	logger   *slog.Logger
	inflight singleflight.Group
}

// NewGrader builds a grader. A nil cache gets a private bounded memory cache;
// a nil judge sends every undecided answer to the fallback policy.
func NewGrader(cache VerdictCache, judge Judge, opts ...Option) (*Grader, error) {
	if cache == nil {
		cache = verdictcache.NewMemory(DefaultCacheEntries, DefaultCacheTTL)
	}
	g := &Grader{
		cache:    cache,
		judge:    judge,
		fallback: FallbackFailClosed,
		logger:   slog.Default().With("component", "grading"),
	}
	for _, opt := range opts {
		opt(g)
	}
	switch g.fallback {
	case FallbackFailClosed, FallbackFuzzy:
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownFallback, g.fallback)
	}
	return g, nil
}

// Grade returns the verdict for req. The only errors are a
// *ValidationError and the context's error when the caller gives up; judge
// failures resolve through the fallback policy.
func (g *Grader) Grade(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	key := CacheKey(req.UserAnswer, req.CorrectAnswer, req.AcceptableAnswers)
	res, err := g.decide(ctx, key, req)
	if err != nil {
		g.logger.DebugContext(ctx, "grading abandoned", "cache_key", key, "error", err)
		return Result{}, err
	}
	res.CacheKey = key
	res.Elapsed = time.Since(start)

	g.logger.InfoContext(ctx, "answer graded",
		"tier", res.Tier,
		"is_correct", res.IsCorrect,
		"duration_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

func (g *Grader) decide(ctx context.Context, key string, req Request) (Result, error) {
	if verdict, found, err := g.cache.Get(ctx, key); err != nil {
		g.logger.WarnContext(ctx, "verdict cache read failed", "error", err)
	} else if found {
		return Result{IsCorrect: verdict, Tier: TierCache}, nil
	}

	if ExactMatch(req.UserAnswer, req.CorrectAnswer) {
		g.store(ctx, key, true)
		return Result{IsCorrect: true, Tier: TierExact}, nil
	}
	if MatchesAcceptable(req.UserAnswer, req.AcceptableAnswers) {
		g.store(ctx, key, true)
		return Result{IsCorrect: true, Tier: TierAcceptable}, nil
	}

	verdict, err := g.judgeShared(ctx, key, req.UserAnswer, req.CorrectAnswer.String())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	if err != nil {
		return g.applyFallback(ctx, req, err), nil
	}
	g.store(ctx, key, verdict)
	return Result{IsCorrect: verdict, Tier: TierSemantic}, nil
}

// judgeShared collapses concurrent judge calls for the same key. The call
// runs under the context of the caller that started it; callers joining it
// stop waiting when their own context ends, and start a new call if the
// starting caller's context was cancelled or hit its deadline.
func (g *Grader) judgeShared(ctx context.Context, key, user, correct string) (bool, error) {
	if g.judge == nil {
		return false, ErrNoJudge
	}

	var res singleflight.Result
	for range maxSharedRetries {
		ch := g.inflight.DoChan(key, func() (any, error) {
			verdict, err := g.judge.Equivalent(ctx, user, correct)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, fmt.Errorf("%w: %w", errCallerGone, ctxErr)
			}
			return verdict, err
		})
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case res = <-ch:
		}
		if res.Shared && ctx.Err() == nil && errors.Is(res.Err, errCallerGone) {
			continue
		}
		break
	}
	if res.Err != nil {
		return false, res.Err
	}
	verdict, _ := res.Val.(bool)
	return verdict, nil
}

// applyFallback resolves a judge failure. Fallback verdicts are never
// cached, so the next identical request asks the judge again.
func (g *Grader) applyFallback(ctx context.Context, req Request, cause error) Result {
	verdict := false
	if g.fallback == FallbackFuzzy {
		verdict = FuzzyMatch(req.UserAnswer, req.CorrectAnswer)
	}
	g.logger.WarnContext(ctx, "semantic judge failed, using fallback",
		"policy", g.fallback,
		"is_correct", verdict,
		"error", cause,
	)
	return Result{IsCorrect: verdict, Tier: TierFallback}
}

func (g *Grader) store(ctx context.Context, key string, verdict bool) {
	if err := g.cache.Set(ctx, key, verdict); err != nil {
		g.logger.WarnContext(ctx, "verdict cache write failed", "error", err)
	}
}
