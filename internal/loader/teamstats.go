package loader

import (
	"context"
	"fmt"

	"aflload/internal/db"
	"aflload/internal/source"
)

// TeamStats loads season totals per team. Counters are optional: missing,
// non-numeric or absent columns are stored as NULL. A database error rolls
// the file back and stops the load.
type TeamStats struct {
	Env
	Dir string
}

func (l *TeamStats) Name() string { return "team_stats" }

func (l *TeamStats) Load(ctx context.Context, s *db.Session) (Result, error) {
	total := Result{Loader: l.Name()}

	files, err := discover(l.Env, l.Name(), l.Dir, "team_stats_*.csv")
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
			return total, fmt.Errorf("team stats %s: %w", path, err)
		}
		l.logger().Info("file loaded", "loader", l.Name(), "file", path, "inserted", res.Inserted)
	}
	return total, nil
}

func (l *TeamStats) loadFile(ctx context.Context, s *db.Session, path string) (Result, error) {
	res := Result{Loader: l.Name(), Files: 1}

	t, err := source.ReadFile(path)
	if err != nil {
		return res, err
	}
	if len(t.Rows) > 0 {
		if err := t.Require("year", "team"); err != nil {
			return res, err
		}
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	insert := s.Dialect().Insert("team_stats", teamStatColumns)
	var inserted int64
	for _, r := range t.Rows {
		st := parseTeamStat(r)
		if _, err := tx.Exec(ctx, insert, st.args()...); err != nil {
			l.logger().Error("insert team stats failed",
				append([]any{"file", path, "line", r.Line, "row", r.Raw, "err", err}, db.ErrAttrs(err)...)...)
			return res, rowError(t, r, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	res.Inserted = inserted
	return res, nil
}
