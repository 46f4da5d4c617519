package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := FromEnv(map[string]string{})
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Backend != "postgres" || cfg.PGDriver != "pgx" || cfg.SQLitePath != "afl.db" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ConnectTimeout != 10*time.Second {
		t.Fatalf("ConnectTimeout = %s", cfg.ConnectTimeout)
	}
	if cfg.SkippedDir != "" {
		t.Fatalf("SkippedDir should default to disabled, got %q", cfg.SkippedDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestFromEnv_ReadsValues(t *testing.T) {
	t.Parallel()

	cfg, err := FromEnv(map[string]string{
		"AFL_BACKEND":        "sqlite",
		"AFL_SQLITE_PATH":    "/tmp/x.db",
		"DB_CONNECT_TIMEOUT": "3s",
		"AFL_DATA_DIR":       "/srv/afl",
		"AFL_TEAMS_DIR":      "/elsewhere/teams",
	})
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Backend != "sqlite" || cfg.SQLitePath != "/tmp/x.db" || cfg.ConnectTimeout != 3*time.Second {
		t.Fatalf("env not applied: %+v", cfg)
	}

	d := cfg.Dirs()
	want := Dirs{
		Players: filepath.Join("/srv/afl", "players"),
		Lineups: filepath.Join("/srv/afl", "lineups"),
		Matches: filepath.Join("/srv/afl", "matches"),
		Teams:   "/elsewhere/teams",
	}
	if d != want {
		t.Fatalf("Dirs() = %+v, want %+v", d, want)
	}
}

func TestFromEnv_BadDuration(t *testing.T) {
	t.Parallel()

	if _, err := FromEnv(map[string]string{"DB_CONNECT_TIMEOUT": "soon"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

// TestBindFlags_OverrideEnv checks the precedence rule: env seeds the flag
// default, an explicit flag wins.
func TestBindFlags_OverrideEnv(t *testing.T) {
	t.Parallel()

	cfg, err := FromEnv(map[string]string{"AFL_BACKEND": "sqlite", "DB_HOST": "envhost"})
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, cfg)
	if err := fs.Parse([]string{"--backend=postgres", "--db-name=afl"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Backend != "postgres" {
		t.Fatalf("flag should override env backend, got %q", cfg.Backend)
	}
	if cfg.DBHost != "envhost" {
		t.Fatalf("env value should survive when flag absent, got %q", cfg.DBHost)
	}
	if cfg.DBName != "afl" {
		t.Fatalf("DBName = %q", cfg.DBName)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		c, err := FromEnv(map[string]string{})
		if err != nil {
			t.Fatalf("FromEnv: %v", err)
		}
		return c
	}

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok postgres", func(c *Config) {}, ""},
		{"ok sqlite", func(c *Config) { c.Backend = "sqlite" }, ""},
		{"unknown backend", func(c *Config) { c.Backend = "oracle" }, "--backend"},
		{"sqlite without path", func(c *Config) { c.Backend = "sqlite"; c.SQLitePath = " " }, "--sqlite-path"},
		{"bad driver", func(c *Config) { c.PGDriver = "odbc" }, "--pg-driver"},
		{"no host", func(c *Config) { c.DBHost = "" }, "--dsn"},
		{"dsn without host", func(c *Config) { c.DBHost = ""; c.DSN = "postgres://x/y" }, ""},
		{"bad metrics", func(c *Config) { c.MetricsBackend = "statsd" }, "--metrics-backend"},
	}
	for _, tc := range cases {
		c := base()
		tc.mutate(c)
		err := c.Validate()
		if tc.wantErr == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: err = %v, want mention of %q", tc.name, err, tc.wantErr)
		}
	}
}

func TestPostgresDSN(t *testing.T) {
	t.Parallel()

	c := &Config{DBHost: "db", DBPort: "5433", DBName: "afl", DBUser: "loader", DBPassword: "p@ss/word", DBSSLMode: "disable"}
	got := c.PostgresDSN()
	want := "postgres://loader:p%40ss%2Fword@db:5433/afl?sslmode=disable"
	if got != want {
		t.Fatalf("PostgresDSN() = %q, want %q", got, want)
	}

	c.DSN = "postgres://explicit/db"
	if got := c.PostgresDSN(); got != "postgres://explicit/db" {
		t.Fatalf("explicit DSN not used: %q", got)
	}
}

func TestSQLiteDSN(t *testing.T) {
	t.Parallel()

	c := &Config{SQLitePath: "afl.db"}
	if got := c.SQLiteDSN(); got != "afl.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)" {
		t.Fatalf("SQLiteDSN() = %q", got)
	}
	c.SQLitePath = "file:afl.db?cache=shared"
	if got := c.SQLiteDSN(); !strings.HasPrefix(got, "file:afl.db?cache=shared&_pragma=") {
		t.Fatalf("SQLiteDSN() with query = %q", got)
	}
}
