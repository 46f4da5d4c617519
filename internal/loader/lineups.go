package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"

	"aflload/internal/db"
	"aflload/internal/source"
)

const lineupSavepoint = "lineup_row"

// Lineups loads team rosters. Each source row names a team on a date and a
// ';'-separated list of players; it becomes one row per player. Rows already
// stored under the same (date, team, player) key are ignored, so rerunning
// over the same files adds nothing.
type Lineups struct {
	Env
	Dir string
}

func (l *Lineups) Name() string { return "lineups" }

// Load processes every team_lineups_*.csv. A failing row is rolled back on
// its own, reported and skipped; only read, begin and commit failures stop
// the load.
func (l *Lineups) Load(ctx context.Context, s *db.Session) (Result, error) {
	total := Result{Loader: l.Name()}

	files, err := discover(l.Env, l.Name(), l.Dir, "team_lineups_*.csv")
	if err != nil {
		return total, err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := l.loadFile(ctx, s, path)
		l.record(l.Name(), res)
		total.add(res)
		if err != nil {
			return total, fmt.Errorf("lineups %s: %w", path, err)
		}
	}
	l.logger().Info("lineups done", "loader", l.Name(), "files", total.Files,
		"inserted", total.Inserted, "ignored", total.Ignored, "failed", total.Failed())
	return total, nil
}

func (l *Lineups) loadFile(ctx context.Context, s *db.Session, path string) (Result, error) {
	res := Result{Loader: l.Name(), Files: 1}

	t, err := source.ReadFile(path)
	if err != nil {
		return res, err
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	insert := s.Dialect().InsertIgnore("team_lineups", lineupColumns, lineupConflict)
	seen := make(map[xxh3.Uint128]struct{})

	for _, r := range t.Rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		inserted, ignored, keys, err := l.loadRow(ctx, tx, insert, r, seen)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			l.fail(&res, rowError(t, r, err))
			continue
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		res.Inserted += inserted
		res.Ignored += ignored
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	l.logger().Info("file loaded", "loader", l.Name(), "file", path,
		"inserted", res.Inserted, "ignored", res.Ignored, "failed", res.Failed())
	return res, nil
}

// loadRow inserts one roster row inside a savepoint. On error everything the
// row wrote is undone and the transaction stays usable.
func (l *Lineups) loadRow(ctx context.Context, tx *db.Tx, insert string, r source.Row, seen map[xxh3.Uint128]struct{}) (inserted, ignored int64, keys []xxh3.Uint128, err error) {
	entries, err := parseLineup(r)
	if err != nil {
		return 0, 0, nil, err
	}

	if err := tx.Savepoint(ctx, lineupSavepoint); err != nil {
		return 0, 0, nil, err
	}
	for _, e := range entries {
		k := lineupKey(e)
		if _, dup := seen[k]; dup || containsKey(keys, k) {
			ignored++
			continue
		}
		n, err := tx.Exec(ctx, insert, e.args()...)
		if err != nil {
			if rbErr := tx.RollbackTo(ctx, lineupSavepoint); rbErr != nil {
				return 0, 0, nil, errors.Join(err, rbErr)
			}
			_ = tx.Release(ctx, lineupSavepoint)
			return 0, 0, nil, err
		}
		keys = append(keys, k)
		if n == 0 {
			ignored++
		} else {
			inserted += n
		}
	}
	if err := tx.Release(ctx, lineupSavepoint); err != nil {
		return 0, 0, nil, err
	}
	return inserted, ignored, keys, nil
}

func (l *Lineups) fail(res *Result, re *RowError) {
	reason := "db_error"
	if errors.Is(re.Err, ErrMissingValue) {
		reason = "missing_field"
	}
	l.logger().Warn("lineup row failed",
		append([]any{"loader", l.Name(), "file", re.File, "line", re.Line, "row", re.Raw, "reason", reason, "err", re.Err},
			db.ErrAttrs(re.Err)...)...)
	if l.Skips != nil {
		if err := l.Skips.Add(reason, re.File, re.Line, re.Raw); err != nil {
			l.logger().Error("skip log write failed", "err", err)
		}
	}
	res.Failures = append(res.Failures, re)
}

// lineupKey hashes the unique key of a lineup row.
func lineupKey(e LineupEntry) xxh3.Uint128 {
	return xxh3.HashString128(e.Date + "\x00" + e.TeamName + "\x00" + e.PlayerName)
}

func containsKey(keys []xxh3.Uint128, k xxh3.Uint128) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}
