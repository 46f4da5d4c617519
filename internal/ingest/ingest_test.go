package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aflload/internal/config"
	"aflload/internal/db"
	"aflload/internal/dialect"
	"aflload/internal/schema"
)

func writeFile(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func matchRow(year, round, t1, t2 string, bad bool) string {
	cells := []string{year, round, year + "-04-01 19:40", "M.C.G.", t1, t2}
	for i := range schema.MatchScores {
		cells = append(cells, fmt.Sprint(i))
	}
	if bad {
		cells[6] = "x"
	}
	return strings.Join(cells, ",")
}

// seedData writes a small tree covering all four loaders.
func seedData(t *testing.T, root string, badMatch bool) {
	t.Helper()
	writeFile(t, filepath.Join(root, "players"), "smith_john_01051990_personal_details.csv",
		"first_name,last_name,born_date,debut_date,height,weight",
		"John,Smith,01-05-1990,15-03-2010,188,85",
	)
	writeFile(t, filepath.Join(root, "players"), "smith_john_01051990_performance_details.csv",
		",team,year,games_played,opponent,round,result,jersey_num,kicks",
		"0,Hawthorn,2010,1,Geelong,1,W,23,12",
		"1,Hawthorn,2010,2,Carlton,2,L,23,8",
	)
	writeFile(t, filepath.Join(root, "lineups"), "team_lineups_hawthorn.csv",
		"year,date,round_num,team_name,players",
		"2010,2010-04-01 19:40,1,Hawthorn,John Smith;Sam Mitchell",
		"2010,2010-04-08 19:40,2,,Nobody",
	)
	writeFile(t, filepath.Join(root, "matches"), "matches_2010.csv",
		"year,round_num,date,venue,team_1_team_name,team_2_team_name,"+strings.Join(schema.MatchScores, ","),
		matchRow("2010", "1", "Hawthorn", "Geelong", false),
		matchRow("2010", "2", "Carlton", "Hawthorn", badMatch),
	)
	writeFile(t, filepath.Join(root, "teams"), "team_stats_2010.csv",
		"year,team,kicks,marks",
		"2010,Hawthorn,4500,nan",
	)
}

func newConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	cfg, err := config.FromEnv(map[string]string{
		"AFL_BACKEND":     "sqlite",
		"AFL_SQLITE_PATH": filepath.Join(t.TempDir(), "afl.db"),
		"AFL_DATA_DIR":    root,
	})
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	return cfg
}

func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

// trackingDeps opens the real SQLite store and remembers the session so
// tests can inspect it after Run returns.
func trackingDeps(got **db.Session) Deps {
	return Deps{Open: func(ctx context.Context, cfg *config.Config) (*db.Session, error) {
		s, err := OpenSession(ctx, cfg)
		*got = s
		return s, err
	}}
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	seedData(t, root, false)
	cfg := newConfig(t, root)
	cfg.SkippedDir = t.TempDir()

	var buf bytes.Buffer
	rep, err := Run(context.Background(), cfg, captureLogger(&buf), DefaultDeps())
	if err != nil {
		t.Fatalf("Run: %v\n%s", err, buf.String())
	}

	var names []string
	for _, r := range rep.Results {
		names = append(names, r.Loader)
	}
	if got := strings.Join(names, ","); got != "players,lineups,matches,team_stats" {
		t.Fatalf("loader order = %s", got)
	}
	tot := rep.Totals()
	// 1 player + 2 performances, 2 lineup entries, 2 matches, 1 team row.
	if tot.Inserted != 8 || tot.Failed() != 1 || tot.Files != 4 {
		t.Fatalf("totals = %+v", tot)
	}
	if !strings.Contains(rep.Summary(), "inserted=8") || !strings.Contains(rep.Summary(), "failed=1") {
		t.Fatalf("summary = %q", rep.Summary())
	}
	if rep.Duration <= 0 {
		t.Fatalf("duration not set")
	}

	skipped, err := os.ReadFile(filepath.Join(cfg.SkippedDir, SkipLogName))
	if err != nil {
		t.Fatalf("read skip log: %v", err)
	}
	if !strings.Contains(string(skipped), "missing_field") || !strings.Contains(string(skipped), "Nobody") {
		t.Fatalf("skip log = %q", skipped)
	}

	s, err := OpenSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	for table, want := range map[string]int{
		"players":             1,
		"player_performances": 2,
		"team_lineups":        2,
		"matches":             2,
		"team_stats":          1,
	} {
		var n int
		if err := s.DB().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != want {
			t.Fatalf("%s rows = %d, want %d", table, n, want)
		}
	}
}

// TestRun_RerunRebuildsSchema runs twice against the same file: the schema
// is dropped and recreated, so row counts do not double.
func TestRun_RerunRebuildsSchema(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	seedData(t, root, false)
	cfg := newConfig(t, root)

	var buf bytes.Buffer
	for i := 0; i < 2; i++ {
		rep, err := Run(context.Background(), cfg, captureLogger(&buf), DefaultDeps())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if rep.Totals().Inserted != 8 {
			t.Fatalf("run %d inserted = %d", i, rep.Totals().Inserted)
		}
	}
}

func TestRun_FatalLoaderStopsAndClosesSession(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	seedData(t, root, true)
	cfg := newConfig(t, root)

	var s *db.Session
	var buf bytes.Buffer
	rep, err := Run(context.Background(), cfg, captureLogger(&buf), trackingDeps(&s))
	if err == nil {
		t.Fatalf("expected matches failure")
	}
	if len(rep.Results) != 3 || rep.Results[2].Loader != "matches" {
		t.Fatalf("results = %+v; team_stats must not run", rep.Results)
	}
	if s == nil {
		t.Fatalf("session was never opened")
	}
	if perr := s.DB().Ping(); perr == nil {
		t.Fatalf("session still open after Run")
	}
}

func TestRun_OpenFailureIsConnectError(t *testing.T) {
	t.Parallel()
	cfg := newConfig(t, t.TempDir())
	deps := Deps{Open: func(context.Context, *config.Config) (*db.Session, error) {
		return nil, errors.New("refused")
	}}

	var buf bytes.Buffer
	rep, err := Run(context.Background(), cfg, captureLogger(&buf), deps)
	if !errors.Is(err, db.ErrConnect) {
		t.Fatalf("err = %v, want ErrConnect", err)
	}
	if len(rep.Results) != 0 {
		t.Fatalf("no loader should run: %+v", rep.Results)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	seedData(t, root, false)
	cfg := newConfig(t, root)

	var s *db.Session
	deps := trackingDeps(&s)
	open := deps.Open
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deps.Open = func(c context.Context, cfg *config.Config) (*db.Session, error) {
		sess, err := open(c, cfg)
		cancel()
		return sess, err
	}

	var buf bytes.Buffer
	if _, err := Run(ctx, cfg, captureLogger(&buf), deps); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if s == nil || s.DB().Ping() == nil {
		t.Fatalf("session should be closed")
	}
}

func TestProvisionOnly(t *testing.T) {
	t.Parallel()
	cfg := newConfig(t, t.TempDir())

	var buf bytes.Buffer
	if err := ProvisionOnly(context.Background(), cfg, captureLogger(&buf), DefaultDeps()); err != nil {
		t.Fatalf("ProvisionOnly: %v", err)
	}
	s, err := OpenSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'").Scan(&n); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if n != len(schema.Tables) {
		t.Fatalf("tables = %d, want %d", n, len(schema.Tables))
	}
}

func TestOpenSession_UnknownBackend(t *testing.T) {
	t.Parallel()
	cfg := newConfig(t, t.TempDir())
	cfg.Backend = "oracle"
	if _, err := OpenSession(context.Background(), cfg); !errors.Is(err, db.ErrConnect) {
		t.Fatalf("err = %v, want ErrConnect", err)
	}
}

func TestOpenSession_SQLiteDialect(t *testing.T) {
	t.Parallel()
	cfg := newConfig(t, t.TempDir())
	s, err := OpenSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	defer s.Close()
	if s.Dialect().Name != dialect.SQLite.Name {
		t.Fatalf("dialect = %s", s.Dialect().Name)
	}
}
