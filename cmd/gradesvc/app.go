package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/oscarlaird/gmath/internal/config"
	"github.com/oscarlaird/gmath/internal/db"
	"github.com/oscarlaird/gmath/internal/grading"
	"github.com/oscarlaird/gmath/internal/judge"
	"github.com/oscarlaird/gmath/internal/llm"
	"github.com/oscarlaird/gmath/internal/moderation"
	"github.com/oscarlaird/gmath/internal/submissions"
	"github.com/oscarlaird/gmath/internal/verdictcache"
)

// app owns the long-lived components and releases them on close.
type app struct {
	cache   verdictcache.Cache
	llm     *llm.Client
	grader  *grading.Grader
	db      *sqlx.DB
	answers moderation.Store
	subs    *submissions.Store

	closers []func() error
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// buildGrader wires cache, LLM pipeline, judge and grader.
func (a *app) buildGrader(ctx context.Context, cfg *config.Config) error {
	cache, err := verdictcache.New(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("verdict cache: %w", err)
	}
	a.cache = cache

	var llmOpts []llm.Option
	if r, ok := cache.(*verdictcache.Redis); ok {
		a.closers = append(a.closers, r.Close)
		llmOpts = append(llmOpts, llm.WithProbeGuard(r.Client()))
	}

	client, err := llm.NewClient(ctx, &cfg.Config, llmOpts...)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}
	a.llm = client
	a.closers = append(a.closers, client.Close)

	g, err := grading.NewGrader(cache, judge.New(client, cfg.Judge),
		grading.WithFallback(grading.FallbackPolicy(cfg.Judge.Fallback)))
	if err != nil {
		return err
	}
	a.grader = g
	return nil
}

// openStores opens the database and the stores on top of it. Without a
// database, acceptable answers live in memory and submissions are off.
func (a *app) openStores(ctx context.Context, cfg *config.Config) error {
	if db.Driver(cfg.Database.Driver) == db.DriverNone {
		a.answers = moderation.NewMemory()
	} else {
		conn, err := db.Open(ctx, db.Driver(cfg.Database.Driver), cfg.Database.DSN)
		if err != nil {
			return err
		}
		a.db = conn
		a.closers = append(a.closers, conn.Close)
		a.answers = moderation.NewSQLStore(conn)
		if cfg.Submissions.Enabled {
			a.subs = submissions.NewStore(conn)
		}
	}

	if path := cfg.Database.PreloadFile; path != "" {
		n, err := moderation.PreloadFile(ctx, a.answers, path)
		if err != nil {
			return fmt.Errorf("preload acceptable answers: %w", err)
		}
		slog.Default().With("component", "moderation").Info("acceptable answers preloaded",
			"path", path, "answers", n)
	}
	return nil
}

func (a *app) stats() any {
	out := map[string]any{}
	if a.cache != nil {
		out["cache"] = a.cache.Stats()
	}
	if a.llm != nil {
		out["llm"] = a.llm.Stats()
	}
	return out
}
