// Package loader turns source CSV files into rows of the relational model.
// There is one loader per entity family:
//
//   - Players: a personal-details file plus its companion performance file
//     become one player and its performances, committed together.
//   - Lineups: each roster cell fans out into one row per player. Bad rows
//     are isolated and reported; the rest of the file still commits.
//   - Matches: all-or-nothing per file; scores must be integers.
//   - TeamStats: lenient; unparseable counters are stored as NULL.
//
// Loaders share a single db.Session and never run concurrently.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"aflload/internal/db"
	"aflload/internal/metrics"
	"aflload/internal/source"
)

// ErrMissingValue reports a required cell that is absent or empty.
var ErrMissingValue = errors.New("required value missing")

// ErrNoPlayerRow reports a personal-details file without a data row.
var ErrNoPlayerRow = errors.New("personal details file has no data row")

// MissingCompanionError reports a personal-details file whose performance
// file does not exist. The player is skipped.
type MissingCompanionError struct {
	Personal    string
	Performance string
}

func (e *MissingCompanionError) Error() string {
	return fmt.Sprintf("no performance file %s for %s", e.Performance, e.Personal)
}

// RowError ties a failure to the source row that caused it.
type RowError struct {
	File string
	Line int
	Raw  string
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

func rowError(t *source.Table, r source.Row, err error) *RowError {
	return &RowError{File: t.Path, Line: r.Line, Raw: r.Raw, Err: err}
}

// SkipSink receives rows a loader gave up on. *skiplog.Log satisfies it.
type SkipSink interface {
	Add(reason, file string, line int, raw string) error
}

// Env is what every loader needs besides its source directory.
type Env struct {
	Logger *slog.Logger
	// Job labels emitted metrics.
	Job string
	// Skips is optional.
	Skips SkipSink
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

// Loader is implemented by every entity loader.
type Loader interface {
	Name() string
	Load(ctx context.Context, s *db.Session) (Result, error)
}

// Result summarizes one loader's run.
type Result struct {
	Loader   string
	Files    int
	Inserted int64
	// Ignored counts rows dropped as duplicates of an existing key.
	Ignored int64
	// Skipped counts source units not loaded at all (players without a
	// performance file).
	Skipped  int
	Failures []*RowError
}

// Failed is the number of isolated row failures.
func (r Result) Failed() int { return len(r.Failures) }

func (r *Result) add(o Result) {
	r.Files += o.Files
	r.Inserted += o.Inserted
	r.Ignored += o.Ignored
	r.Skipped += o.Skipped
	r.Failures = append(r.Failures, o.Failures...)
}

// record emits one file's counts as metrics.
func (e Env) record(loader string, r Result) {
	metrics.RecordFiles(e.Job, loader, int64(r.Files))
	metrics.RecordRow(e.Job, loader, "inserted", r.Inserted)
	metrics.RecordRow(e.Job, loader, "ignored", r.Ignored)
	metrics.RecordRow(e.Job, loader, "skipped", int64(r.Skipped))
	metrics.RecordRow(e.Job, loader, "failed", int64(len(r.Failures)))
}

func discover(env Env, loader, dir, pattern string) ([]string, error) {
	files, err := source.Discover(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loader, err)
	}
	if len(files) == 0 {
		env.logger().Warn("no source files", "loader", loader, "dir", dir, "pattern", pattern)
	}
	return files, nil
}

// nullInt converts an optional integer into a driver argument.
func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
