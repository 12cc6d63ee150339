package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/oscarlaird/gmath/internal/config"
)

type cli struct {
	configFile string
	envFile    string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "gradesvc",
		Short:        "Grade free-form math answers",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.LoadOptions{ConfigFile: c.configFile, EnvFile: c.envFile})
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = newLogger(cmd.ErrOrStderr(), cfg.Observability)
			slog.SetDefault(c.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "dotenv file loaded before reading the environment (default .env if present)")

	root.AddCommand(newServeCmd(c), newGradeCmd(c), newAnswersCmd(c))
	return root
}

func newLogger(w io.Writer, obs config.ObservabilityConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(obs.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if obs.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
