package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oscarlaird/gmath/internal/api"
)

const readHeaderTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the grading HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	cfg := c.cfg
	logger := c.logger.With("component", "server")

	a := &app{}
	defer func() {
		if err := a.close(); err != nil {
			logger.Warn("shutdown cleanup failed", "error", err)
		}
	}()
	if err := a.openStores(ctx, cfg); err != nil {
		return err
	}
	if err := a.buildGrader(ctx, cfg); err != nil {
		return err
	}

	deps := api.Deps{
		Grader:  a.grader,
		Answers: a.answers,
		Stats:   a.stats,
		Logger:  c.logger.With("component", "api"),
	}
	// Assigned only when set so the interfaces stay nil otherwise.
	if a.subs != nil {
		deps.Submissions = a.subs
	}
	if a.db != nil {
		deps.DB = a.db
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewServer(deps).Routes(api.Options{
			RequestTimeout: cfg.Server.RequestTimeout,
			CORSOrigins:    cfg.Server.CORSOrigins,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Server.Addr,
			"judge_provider", cfg.Judge.Provider, "judge_model", cfg.Judge.Model,
			"cache_backend", cfg.Cache.Backend, "database", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
