// Command aflload rebuilds the AFL schema and loads the CSV exports into
// Postgres or SQLite.
//
// Usage:
//
//	aflload --backend sqlite --sqlite-path afl.db --data-dir data
//	aflload schema --backend postgres --dsn postgres://u:p@h/db
//
// main stays tiny; run owns the wiring so tests can drive it with an explicit
// environment and injected dependencies.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"aflload/internal/config"
	"aflload/internal/ingest"
	"aflload/internal/metrics"
	"aflload/internal/metrics/datadog"
	"aflload/internal/metrics/prompush"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], nil, os.Stderr, ingest.DefaultDeps())
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// run parses args against a config seeded from environ (nil means the
// process environment) and executes the selected command. Logs go to out.
func run(ctx context.Context, args []string, environ map[string]string, out io.Writer, deps ingest.Deps) error {
	cfg, err := config.FromEnv(environ)
	if err != nil {
		fmt.Fprintln(out, err)
		return err
	}
	root := newRootCmd(cfg, out, deps)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

func newRootCmd(cfg *config.Config, out io.Writer, deps ingest.Deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "aflload",
		Short:         "Load AFL CSV exports into a SQL database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), cfg, out, func(ctx context.Context, logger *slog.Logger) error {
				rep, err := ingest.Run(ctx, cfg, logger, deps)
				logger.Info("load finished", "duration", rep.Duration.Round(time.Millisecond), "summary", rep.Summary())
				return err
			})
		},
	}
	config.BindFlags(root.PersistentFlags(), cfg)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		fmt.Fprintln(out, err)
		return err
	})

	root.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Drop and recreate the schema without loading data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), cfg, out, func(ctx context.Context, logger *slog.Logger) error {
				return ingest.ProvisionOnly(ctx, cfg, logger, deps)
			})
		},
	})
	return root
}

// withRuntime validates cfg, builds the logger and metrics backend, runs fn
// and tears everything down. Any error is logged once before returning.
func withRuntime(ctx context.Context, cfg *config.Config, out io.Writer, fn func(context.Context, *slog.Logger) error) error {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, err)
		return err
	}
	logger, err := newLogger(out, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(out, err)
		return err
	}

	mb, err := newMetricsBackend(cfg)
	if err != nil {
		logger.Error("metrics backend", "err", err)
		return err
	}
	metrics.SetBackend(mb)
	defer func() {
		if err := metrics.Flush(); err != nil {
			logger.Warn("metrics flush failed", "err", err)
		}
	}()

	if err := fn(ctx, logger); err != nil {
		logger.Error("aflload failed", "err", err)
		return err
	}
	return nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (want text or json)", format)
	}
}

// newMetricsBackend returns nil for "none", which keeps the nop backend.
func newMetricsBackend(cfg *config.Config) (metrics.Backend, error) {
	switch cfg.MetricsBackend {
	case "pushgateway":
		return prompush.NewBackend(cfg.Job, cfg.PushgatewayURL)
	case "datadog":
		return datadog.NewBackend(datadog.Config{
			Addr:       cfg.DogStatsDAddr,
			GlobalTags: []string{"job:" + cfg.Job},
		})
	default:
		return nil, nil
	}
}
