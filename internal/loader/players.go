package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"aflload/internal/db"
	"aflload/internal/source"
)

const (
	personalSuffix    = "_personal_details.csv"
	performanceSuffix = "_performance_details.csv"
)

// Players loads player biographies and their per-game performances. Each
// "<prefix>_personal_details.csv" is paired with
// "<prefix>_performance_details.csv" in the same directory.
type Players struct {
	Env
	Dir string
}

func (l *Players) Name() string { return "players" }

// Load processes every personal-details file. A player without a
// performance file is skipped with a warning; any other failure stops the
// load with that player's transaction rolled back.
func (l *Players) Load(ctx context.Context, s *db.Session) (Result, error) {
	log := l.logger().With("loader", l.Name())
	total := Result{Loader: l.Name()}

	files, err := discover(l.Env, l.Name(), l.Dir, "*"+personalSuffix)
	if err != nil {
		return total, err
	}
	for _, personal := range files {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := l.loadPlayer(ctx, s, personal)
		l.record(l.Name(), res)
		total.add(res)
		if err != nil {
			return total, fmt.Errorf("players %s: %w", personal, err)
		}
		if res.Skipped == 0 {
			log.Debug("player loaded", "file", personal, "inserted", res.Inserted)
		}
	}
	log.Info("players done", "files", total.Files, "inserted", total.Inserted, "skipped", total.Skipped)
	return total, nil
}

func (l *Players) loadPlayer(ctx context.Context, s *db.Session, personal string) (Result, error) {
	res := Result{Loader: l.Name(), Files: 1}

	performance := strings.TrimSuffix(personal, personalSuffix) + performanceSuffix
	if _, err := os.Stat(performance); errors.Is(err, fs.ErrNotExist) {
		mc := &MissingCompanionError{Personal: personal, Performance: performance}
		l.logger().Warn("skipping player", "loader", l.Name(), "file", personal, "err", mc)
		res.Skipped = 1
		return res, nil
	} else if err != nil {
		return res, err
	}

	pt, err := source.ReadFile(personal)
	if err != nil {
		return res, err
	}
	if len(pt.Rows) == 0 {
		return res, ErrNoPlayerRow
	}
	if err := pt.Require("first_name", "last_name", "born_date", "debut_date"); err != nil {
		return res, err
	}
	player, err := parsePlayer(pt.Rows[0])
	if err != nil {
		return res, rowError(pt, pt.Rows[0], err)
	}

	perfTable, err := source.ReadFile(performance)
	if err != nil {
		return res, err
	}
	if err := perfTable.Require(performanceRequired...); err != nil {
		return res, fmt.Errorf("%s: %w", performance, err)
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	id, err := tx.InsertReturningID(ctx, "players", playerColumns, player.args()...)
	if err != nil {
		l.logger().Error("insert player failed", append([]any{"file", personal, "err", err}, db.ErrAttrs(err)...)...)
		return res, err
	}
	var inserted int64 = 1

	insertPerf := s.Dialect().Insert("player_performances", performanceColumns)
	for _, r := range perfTable.Rows {
		p := parsePerformance(r)
		if _, err := tx.Exec(ctx, insertPerf, p.args(id)...); err != nil {
			l.logger().Error("insert performance failed",
				append([]any{"file", performance, "line", r.Line, "err", err}, db.ErrAttrs(err)...)...)
			return res, rowError(perfTable, r, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	res.Inserted = inserted
	return res, nil
}
