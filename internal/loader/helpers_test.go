package loader

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aflload/internal/db"
	"aflload/internal/dialect"
	"aflload/internal/schema"
	"aflload/internal/source"
)

// openStore returns a provisioned SQLite session in a temp dir.
func openStore(t *testing.T, d dialect.Dialect) *db.Session {
	t.Helper()
	s, err := db.Open(context.Background(), db.Options{
		Driver:  "sqlite",
		DSN:     filepath.Join(t.TempDir(), "afl.db"),
		Dialect: d,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := schema.Provision(context.Background(), s); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	return s
}

func writeCSV(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func mustParse(t *testing.T, lines ...string) *source.Table {
	t.Helper()
	tbl, err := source.Parse([]byte(strings.Join(lines, "\n")+"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return tbl
}

func count(t *testing.T, s *db.Session, q string, args ...any) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRow(q, args...).Scan(&n); err != nil {
		t.Fatalf("%s: %v", q, err)
	}
	return n
}

// testEnv returns an Env whose log output is captured in buf.
func testEnv(buf *bytes.Buffer) Env {
	return Env{
		Logger: slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Job:    "test",
	}
}

type skipCall struct {
	reason, file string
	line         int
	raw          string
}

type fakeSkips struct{ calls []skipCall }

func (f *fakeSkips) Add(reason, file string, line int, raw string) error {
	f.calls = append(f.calls, skipCall{reason, file, line, raw})
	return nil
}
