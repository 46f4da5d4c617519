// Package ingest runs a complete load: open the store, rebuild the schema,
// then run the entity loaders in order. It is a thin composition layer; every
// side effect that tests need to replace is injected via Deps.
//
// Design goals:
//   - One session per run, closed on every exit path.
//   - Loader order is fixed: players, lineups, matches, team stats.
//   - The first fatal loader error ends the run; earlier commits stay.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"aflload/internal/config"
	"aflload/internal/db"
	"aflload/internal/dialect"
	"aflload/internal/loader"
	"aflload/internal/metrics"
	"aflload/internal/schema"
	"aflload/internal/skiplog"
)

// SkipLogName is the file written under the skipped directory.
const SkipLogName = "lineups_skipped.csv"

// Deps holds injectable dependencies.
type Deps struct {
	// Open returns a ready session for cfg.
	Open func(ctx context.Context, cfg *config.Config) (*db.Session, error)
}

// DefaultDeps wires the real database drivers.
func DefaultDeps() Deps {
	return Deps{Open: OpenSession}
}

// OpenSession maps cfg onto db.Options and opens the store.
func OpenSession(ctx context.Context, cfg *config.Config) (*db.Session, error) {
	d, err := dialect.ForBackend(cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", db.ErrConnect, err)
	}
	opts := db.Options{Dialect: d, ConnectTimeout: cfg.ConnectTimeout}
	switch d.Name {
	case dialect.SQLite.Name:
		opts.Driver, opts.DSN = "sqlite", cfg.SQLiteDSN()
	default:
		opts.Driver, opts.DSN = cfg.PGDriver, cfg.PostgresDSN()
	}
	return db.Open(ctx, opts)
}

// Report is the outcome of a run.
type Report struct {
	Results  []loader.Result
	Duration time.Duration
}

// Totals sums every loader result.
func (r Report) Totals() loader.Result {
	var t loader.Result
	for _, res := range r.Results {
		t.Files += res.Files
		t.Inserted += res.Inserted
		t.Ignored += res.Ignored
		t.Skipped += res.Skipped
		t.Failures = append(t.Failures, res.Failures...)
	}
	return t
}

// Summary returns a one-line human-readable summary.
func (r Report) Summary() string {
	t := r.Totals()
	return fmt.Sprintf("loaders=%d files=%d inserted=%d ignored=%d skipped=%d failed=%d",
		len(r.Results), t.Files, t.Inserted, t.Ignored, t.Skipped, t.Failed())
}

// Loaders builds the ordered loader list for cfg.
func Loaders(cfg *config.Config, env loader.Env) []loader.Loader {
	dirs := cfg.Dirs()
	return []loader.Loader{
		&loader.Players{Env: env, Dir: dirs.Players},
		&loader.Lineups{Env: env, Dir: dirs.Lineups},
		&loader.Matches{Env: env, Dir: dirs.Matches},
		&loader.TeamStats{Env: env, Dir: dirs.Teams},
	}
}

// Run provisions the schema and loads every entity family. The returned
// Report covers whatever ran, including on error.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps Deps) (rep Report, err error) {
	start := time.Now()
	defer func() { rep.Duration = time.Since(start) }()

	s, err := open(ctx, cfg, deps)
	if err != nil {
		return rep, err
	}
	defer closeSession(s, logger)

	if err := step(cfg.Job, "provision", func() error { return schema.Provision(ctx, s) }); err != nil {
		return rep, err
	}
	logger.Info("schema provisioned", "backend", s.Dialect().Name, "tables", len(schema.Tables))

	env := loader.Env{Logger: logger, Job: cfg.Job}
	if cfg.SkippedDir != "" {
		path := filepath.Join(cfg.SkippedDir, SkipLogName)
		sl, err := skiplog.New(path)
		if err != nil {
			return rep, fmt.Errorf("skip log: %w", err)
		}
		defer func() {
			if cerr := sl.Close(); cerr != nil {
				logger.Error("close skip log", "file", path, "err", cerr)
			}
		}()
		env.Skips = sl
		logger.Info("writing skipped rows", "file", path)
	}

	for _, l := range Loaders(cfg, env) {
		var res loader.Result
		lerr := step(cfg.Job, l.Name(), func() error {
			var err error
			res, err = l.Load(ctx, s)
			return err
		})
		res.Loader = l.Name()
		rep.Results = append(rep.Results, res)
		if lerr != nil {
			return rep, lerr
		}
	}
	return rep, nil
}

// ProvisionOnly opens the store and rebuilds the schema without loading.
func ProvisionOnly(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps Deps) error {
	s, err := open(ctx, cfg, deps)
	if err != nil {
		return err
	}
	defer closeSession(s, logger)

	if err := step(cfg.Job, "provision", func() error { return schema.Provision(ctx, s) }); err != nil {
		return err
	}
	logger.Info("schema provisioned", "backend", s.Dialect().Name, "tables", len(schema.Tables))
	return nil
}

func open(ctx context.Context, cfg *config.Config, deps Deps) (*db.Session, error) {
	s, err := deps.Open(ctx, cfg)
	if err != nil {
		if !errors.Is(err, db.ErrConnect) {
			err = fmt.Errorf("%w: %w", db.ErrConnect, err)
		}
		return nil, err
	}
	return s, nil
}

func closeSession(s *db.Session, logger *slog.Logger) {
	if err := s.Close(); err != nil {
		logger.Error("close session", "err", err)
	}
}

// step times fn and records it as a run step.
func step(job, name string, fn func() error) error {
	t0 := time.Now()
	err := fn()
	metrics.RecordStep(job, name, err, time.Since(t0))
	return err
}
