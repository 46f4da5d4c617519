// Package config centralizes process configuration. Values are seeded from
// environment variables (12-factor friendly) and may then be overridden by
// command-line flags bound with BindFlags, so `--help` shows every knob with
// its effective default.
//
// Typical usage:
//
//	cfg, err := config.Load()         // process environment
//	config.BindFlags(cmd.Flags(), cfg) // flags override env
//	err = cfg.Validate()
//
// For tests, prefer FromEnv with an explicit map to stay hermetic:
//
//	cfg, err := config.FromEnv(map[string]string{"AFL_BACKEND": "sqlite"})
package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

// Config holds everything the loader needs. All fields are plain values so
// the struct can be copied freely after construction.
type Config struct {
	// Backend selects the storage engine: "postgres" or "sqlite".
	Backend string `env:"AFL_BACKEND" envDefault:"postgres"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `env:"AFL_SQLITE_PATH" envDefault:"afl.db"`

	// DSN, when set, is used verbatim for postgres. Otherwise one is built
	// from the discrete DB* fields.
	DSN        string `env:"DB_DSN"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBName     string `env:"DB_NAME" envDefault:"postgres"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// PGDriver picks the database/sql driver for postgres: "pgx" or "postgres" (lib/pq).
	PGDriver       string        `env:"PG_DRIVER" envDefault:"pgx"`
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"10s"`

	// Source directories. Empty entity dirs default to DataDir/<entity>.
	DataDir    string `env:"AFL_DATA_DIR" envDefault:"data"`
	PlayersDir string `env:"AFL_PLAYERS_DIR"`
	LineupsDir string `env:"AFL_LINEUPS_DIR"`
	MatchesDir string `env:"AFL_MATCHES_DIR"`
	TeamsDir   string `env:"AFL_TEAMS_DIR"`

	// SkippedDir, when set, receives a CSV of lineup rows that failed.
	SkippedDir string `env:"SKIPPED_DIR"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	MetricsBackend string `env:"METRICS_BACKEND" envDefault:"none"`
	PushgatewayURL string `env:"PUSHGATEWAY_URL" envDefault:"http://localhost:9091"`
	DogStatsDAddr  string `env:"DOGSTATSD_ADDR" envDefault:"127.0.0.1:8125"`
	Job            string `env:"METRICS_JOB" envDefault:"aflload"`
}

// Dirs are the resolved per-entity source directories.
type Dirs struct {
	Players string
	Lineups string
	Matches string
	Teams   string
}

// FromEnv parses a Config from environ. A nil map means the process
// environment.
func FromEnv(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Load is the production entry point: FromEnv over the process environment.
func Load() (*Config, error) {
	return FromEnv(nil)
}

// BindFlags registers one flag per field on fs. Each flag's default is the
// value already in cfg, so explicit flags win over the environment.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "storage backend: postgres or sqlite")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "sqlite database file")

	fs.StringVar(&cfg.DSN, "dsn", cfg.DSN, "full postgres DSN (overrides the --db-* parts)")
	fs.StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "postgres host")
	fs.StringVar(&cfg.DBPort, "db-port", cfg.DBPort, "postgres port")
	fs.StringVar(&cfg.DBName, "db-name", cfg.DBName, "postgres database name")
	fs.StringVar(&cfg.DBUser, "db-user", cfg.DBUser, "postgres user")
	fs.StringVar(&cfg.DBPassword, "db-password", cfg.DBPassword, "postgres password")
	fs.StringVar(&cfg.DBSSLMode, "db-sslmode", cfg.DBSSLMode, "postgres sslmode")
	fs.StringVar(&cfg.PGDriver, "pg-driver", cfg.PGDriver, "postgres driver: pgx or postgres (lib/pq)")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "timeout for the initial connection check")

	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "root of the scraped data tree")
	fs.StringVar(&cfg.PlayersDir, "players-dir", cfg.PlayersDir, "player files (default <data-dir>/players)")
	fs.StringVar(&cfg.LineupsDir, "lineups-dir", cfg.LineupsDir, "lineup files (default <data-dir>/lineups)")
	fs.StringVar(&cfg.MatchesDir, "matches-dir", cfg.MatchesDir, "match files (default <data-dir>/matches)")
	fs.StringVar(&cfg.TeamsDir, "teams-dir", cfg.TeamsDir, "team stats files (default <data-dir>/teams)")
	fs.StringVar(&cfg.SkippedDir, "skipped-dir", cfg.SkippedDir, "write failed lineup rows as CSV here (disabled when empty)")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")

	fs.StringVar(&cfg.MetricsBackend, "metrics-backend", cfg.MetricsBackend, "none, pushgateway or datadog")
	fs.StringVar(&cfg.PushgatewayURL, "pushgateway-url", cfg.PushgatewayURL, "Pushgateway base URL")
	fs.StringVar(&cfg.DogStatsDAddr, "dogstatsd-addr", cfg.DogStatsDAddr, "DogStatsD address")
	fs.StringVar(&cfg.Job, "job", cfg.Job, "job name attached to metrics")
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "postgres":
		switch c.PGDriver {
		case "pgx", "postgres":
		default:
			return fmt.Errorf("unsupported --pg-driver=%q (want pgx or postgres)", c.PGDriver)
		}
		if c.DSN == "" && (c.DBHost == "" || c.DBName == "") {
			return fmt.Errorf("postgres needs --dsn or --db-host and --db-name")
		}
	case "sqlite":
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("--sqlite-path required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported --backend=%q (want postgres or sqlite)", c.Backend)
	}

	switch c.MetricsBackend {
	case "", "none", "pushgateway", "datadog":
	default:
		return fmt.Errorf("unsupported --metrics-backend=%q", c.MetricsBackend)
	}
	return nil
}

// PostgresDSN returns DSN when set, otherwise a URL built from the parts.
func (c *Config) PostgresDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	if c.DBPassword != "" {
		u.User = url.UserPassword(c.DBUser, c.DBPassword)
	} else if c.DBUser != "" {
		u.User = url.User(c.DBUser)
	}
	if c.DBSSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.DBSSLMode}}.Encode()
	}
	return u.String()
}

// SQLiteDSN returns SQLitePath with the driver pragmas the loaders rely on.
func (c *Config) SQLiteDSN() string {
	sep := "?"
	if strings.Contains(c.SQLitePath, "?") {
		sep = "&"
	}
	return c.SQLitePath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Dirs resolves the per-entity directories against DataDir.
func (c *Config) Dirs() Dirs {
	pick := func(explicit, name string) string {
		if explicit != "" {
			return explicit
		}
		return filepath.Join(c.DataDir, name)
	}
	return Dirs{
		Players: pick(c.PlayersDir, "players"),
		Lineups: pick(c.LineupsDir, "lineups"),
		Matches: pick(c.MatchesDir, "matches"),
		Teams:   pick(c.TeamsDir, "teams"),
	}
}
