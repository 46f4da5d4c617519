// Package schema owns the relational model: table and index definitions, the
// dialect-specific DDL rendered from them, and Provision, which rebuilds the
// schema from scratch.
//
// The model is deliberately small. It does not quote identifiers and it only
// knows the constraint forms the tables below use: NOT NULL, a single
// foreign key per column, and one composite UNIQUE per table.
package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aflload/internal/db"
	"aflload/internal/dialect"
)

// ErrProvision reports a failed schema rebuild.
var ErrProvision = errors.New("schema provisioning failed")

// Column is one column definition.
type Column struct {
	Name    string
	Type    string
	NotNull bool
	// References is an optional "table(column)" foreign key target; rows are
	// deleted with their parent.
	References string
}

// Table is one table definition. Every table gets the dialect's id column
// first.
type Table struct {
	Name    string
	Columns []Column
	Unique  []string
}

// Index is a secondary index.
type Index struct {
	Name    string
	Table   string
	Columns []string
}

// Stat column groups shared with the loaders. Order is insert order.
var (
	PerformanceCounters = []string{
		"jersey_num", "kicks", "marks", "handballs", "disposals",
		"goals", "behinds", "hit_outs", "tackles", "rebound_50s",
		"inside_50s", "clearances", "clangers", "free_kicks_for",
		"free_kicks_against", "brownlow_votes", "contested_possessions",
		"uncontested_possessions", "contested_marks", "marks_inside_50",
		"one_percenters", "bounces", "goal_assist", "percentage_of_game_played",
	}

	TeamStatCounters = []string{
		"kicks", "marks", "handballs", "disposals", "goals", "behinds",
		"hit_outs", "tackles", "rebound_50s", "inside_50s", "clearances",
		"clangers", "frees_for", "brownlow_votes", "contested_possessions",
		"uncontested_possessions", "contested_marks", "marks_inside_50",
		"one_percenters", "bounces", "goal_assists",
	}

	MatchScores = matchScoreColumns()
)

func matchScoreColumns() []string {
	var cols []string
	for _, team := range []string{"team_1", "team_2"} {
		for _, period := range []string{"q1", "q2", "q3", "final"} {
			cols = append(cols, team+"_"+period+"_goals", team+"_"+period+"_behinds")
		}
	}
	return cols
}

// Tables lists the managed tables in creation order.
var Tables = []string{"players", "player_performances", "team_lineups", "matches", "team_stats"}

// Definitions returns the table model in creation order: parents before
// children.
func Definitions() []Table {
	players := Table{
		Name: "players",
		Columns: []Column{
			{Name: "first_name", Type: "VARCHAR(100)", NotNull: true},
			{Name: "last_name", Type: "VARCHAR(100)", NotNull: true},
			{Name: "born_date", Type: "DATE", NotNull: true},
			{Name: "debut_date", Type: "DATE", NotNull: true},
			{Name: "height", Type: "INTEGER"},
			{Name: "weight", Type: "INTEGER"},
		},
		Unique: []string{"first_name", "last_name", "born_date"},
	}

	perf := Table{
		Name: "player_performances",
		Columns: []Column{
			{Name: "player_id", Type: "INTEGER", NotNull: true, References: "players(id)"},
			{Name: "team", Type: "VARCHAR(100)", NotNull: true},
			{Name: "year", Type: "INTEGER", NotNull: true},
			{Name: "games_played", Type: "INTEGER"},
			{Name: "opponent", Type: "VARCHAR(100)", NotNull: true},
			{Name: "round", Type: "VARCHAR(20)", NotNull: true},
			{Name: "result", Type: "VARCHAR(3)", NotNull: true},
		},
	}
	perf.Columns = append(perf.Columns, intColumns(PerformanceCounters, false)...)

	lineups := Table{
		Name: "team_lineups",
		Columns: []Column{
			{Name: "year", Type: "INTEGER", NotNull: true},
			{Name: "date", Type: "TIMESTAMP", NotNull: true},
			{Name: "round_num", Type: "VARCHAR(20)", NotNull: true},
			{Name: "team_name", Type: "VARCHAR(100)", NotNull: true},
			{Name: "player_name", Type: "VARCHAR(100)", NotNull: true},
		},
		Unique: []string{"date", "team_name", "player_name"},
	}

	matches := Table{
		Name: "matches",
		Columns: []Column{
			{Name: "year", Type: "INTEGER", NotNull: true},
			{Name: "round_num", Type: "VARCHAR(20)", NotNull: true},
			{Name: "date", Type: "TIMESTAMP", NotNull: true},
			{Name: "venue", Type: "VARCHAR(100)", NotNull: true},
			{Name: "team_1_name", Type: "VARCHAR(100)", NotNull: true},
			{Name: "team_2_name", Type: "VARCHAR(100)", NotNull: true},
		},
		Unique: []string{"date", "team_1_name", "team_2_name"},
	}
	matches.Columns = append(matches.Columns, intColumns(MatchScores, true)...)

	teamStats := Table{
		Name: "team_stats",
		Columns: []Column{
			{Name: "year", Type: "INTEGER", NotNull: true},
			{Name: "team", Type: "VARCHAR(100)", NotNull: true},
		},
		Unique: []string{"year", "team"},
	}
	teamStats.Columns = append(teamStats.Columns, intColumns(TeamStatCounters, false)...)

	return []Table{players, perf, lineups, matches, teamStats}
}

// Indexes lists the secondary indexes.
var Indexes = []Index{
	{Name: "idx_team_lineups_team_date", Table: "team_lineups", Columns: []string{"team_name", "date"}},
	{Name: "idx_team_lineups_player", Table: "team_lineups", Columns: []string{"player_name"}},
	{Name: "idx_matches_teams", Table: "matches", Columns: []string{"team_1_name", "team_2_name"}},
	{Name: "idx_matches_date", Table: "matches", Columns: []string{"date"}},
	{Name: "idx_matches_year_round", Table: "matches", Columns: []string{"year", "round_num"}},
	{Name: "idx_team_stats_team", Table: "team_stats", Columns: []string{"team"}},
	{Name: "idx_team_stats_year", Table: "team_stats", Columns: []string{"year"}},
}

func intColumns(names []string, notNull bool) []Column {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: "INTEGER", NotNull: notNull}
	}
	return cols
}

// CreateTable renders CREATE TABLE IF NOT EXISTS for t.
func CreateTable(d dialect.Dialect, t Table) string {
	defs := make([]string, 0, len(t.Columns)+2)
	defs = append(defs, d.IDColumn)
	for _, c := range t.Columns {
		var sb strings.Builder
		sb.WriteString(c.Name)
		sb.WriteByte(' ')
		sb.WriteString(c.Type)
		if c.NotNull {
			sb.WriteString(" NOT NULL")
		}
		if c.References != "" {
			sb.WriteString(" REFERENCES ")
			sb.WriteString(c.References)
			sb.WriteString(" ON DELETE CASCADE")
		}
		defs = append(defs, sb.String())
	}
	if len(t.Unique) > 0 {
		defs = append(defs, "UNIQUE ("+strings.Join(t.Unique, ", ")+")")
	}
	return "CREATE TABLE IF NOT EXISTS " + t.Name + " (\n\t" + strings.Join(defs, ",\n\t") + "\n)"
}

// CreateIndex renders CREATE INDEX IF NOT EXISTS for ix.
func CreateIndex(ix Index) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		ix.Name, ix.Table, strings.Join(ix.Columns, ", "))
}

// Statements returns the ordered DDL that rebuilds the schema: drops with
// children first, creates with parents first, then indexes. Each element is
// a single statement.
func Statements(d dialect.Dialect) []string {
	defs := Definitions()
	stmts := make([]string, 0, 2*len(defs)+len(Indexes))
	for i := len(defs) - 1; i >= 0; i-- {
		stmts = append(stmts, d.DropTable(defs[i].Name))
	}
	for _, t := range defs {
		stmts = append(stmts, CreateTable(d, t))
	}
	for _, ix := range Indexes {
		stmts = append(stmts, CreateIndex(ix))
	}
	return stmts
}

// Provision drops and recreates every table and index in one transaction.
// Existing data is discarded. On failure nothing is committed and the error
// wraps ErrProvision.
func Provision(ctx context.Context, s *db.Session) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProvision, err)
	}
	defer tx.Rollback()

	for _, stmt := range Statements(s.Dialect()) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrProvision, firstLine(stmt), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrProvision, err)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
