package loader

import (
	"context"
	"fmt"

	"aflload/internal/db"
	"aflload/internal/source"
)

// Matches loads match results. A file is all-or-nothing: the first row that
// cannot be converted or inserted rolls the whole file back and stops the
// load. Files committed earlier are kept.
type Matches struct {
	Env
	Dir string
}

func (l *Matches) Name() string { return "matches" }

func (l *Matches) Load(ctx context.Context, s *db.Session) (Result, error) {
	total := Result{Loader: l.Name()}

	files, err := discover(l.Env, l.Name(), l.Dir, "matches_*.csv")
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
			return total, fmt.Errorf("matches %s: %w", path, err)
		}
		l.logger().Info("file loaded", "loader", l.Name(), "file", path, "inserted", res.Inserted)
	}
	return total, nil
}

func (l *Matches) loadFile(ctx context.Context, s *db.Session, path string) (Result, error) {
	res := Result{Loader: l.Name(), Files: 1}

	t, err := source.ReadFile(path)
	if err != nil {
		return res, err
	}
	if len(t.Rows) > 0 {
		if err := t.Require(matchRequired...); err != nil {
			return res, err
		}
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	insert := s.Dialect().Insert("matches", matchColumns)
	var inserted int64
	for _, r := range t.Rows {
		m, err := parseMatch(r)
		if err != nil {
			return res, rowError(t, r, err)
		}
		if _, err := tx.Exec(ctx, insert, m.args()...); err != nil {
			l.logger().Error("insert match failed",
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
