// Package dialect isolates the SQL text differences between the supported
// storage engines. A Dialect is a plain value selected once at startup and
// passed to everything that renders SQL; nothing downstream inspects the
// live driver.
package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// Bind is the positional parameter style of an engine.
type Bind int

const (
	// BindDollar renders $1, $2, ... (Postgres).
	BindDollar Bind = iota
	// BindQuestion renders ?, ?, ... (SQLite).
	BindQuestion
)

// IDStrategy is how a just-inserted row's generated id is read back.
type IDStrategy int

const (
	// IDReturning appends "RETURNING id" and scans the first column.
	IDReturning IDStrategy = iota
	// IDLastInsert executes the plain INSERT and reads the driver's
	// last-insert-rowid.
	IDLastInsert
)

func (s IDStrategy) String() string {
	switch s {
	case IDReturning:
		return "returning"
	case IDLastInsert:
		return "last_insert_id"
	default:
		return "IDStrategy(" + strconv.Itoa(int(s)) + ")"
	}
}

// Dialect describes one storage engine.
type Dialect struct {
	Name        string
	IDColumn    string // auto-incrementing primary key declaration
	DropCascade bool
	Bind        Bind
	IDStrategy  IDStrategy
}

var (
	Postgres = Dialect{
		Name:        "postgres",
		IDColumn:    "id SERIAL PRIMARY KEY",
		DropCascade: true,
		Bind:        BindDollar,
		IDStrategy:  IDReturning,
	}
	SQLite = Dialect{
		Name:        "sqlite",
		IDColumn:    "id INTEGER PRIMARY KEY AUTOINCREMENT",
		DropCascade: false,
		Bind:        BindQuestion,
		IDStrategy:  IDLastInsert,
	}
)

// ForBackend returns the dialect for a backend selector.
func ForBackend(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported backend %q (want postgres or sqlite)", name)
	}
}

// Placeholder returns the token for the i-th (1-based) parameter.
func (d Dialect) Placeholder(i int) string {
	if d.Bind == BindDollar {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

// Placeholders returns n comma-separated parameter tokens.
func (d Dialect) Placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.Placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

// DropTable renders an existence-checked DROP TABLE.
func (d Dialect) DropTable(table string) string {
	if d.DropCascade {
		return "DROP TABLE IF EXISTS " + table + " CASCADE"
	}
	return "DROP TABLE IF EXISTS " + table
}

// Insert renders a plain INSERT for cols.
func (d Dialect) Insert(table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), d.Placeholders(len(cols)))
}

// InsertIgnore renders an INSERT that is silently dropped when it would
// violate the unique key made of conflict.
func (d Dialect) InsertIgnore(table string, cols, conflict []string) string {
	return d.Insert(table, cols) +
		" ON CONFLICT (" + strings.Join(conflict, ", ") + ") DO NOTHING"
}

// InsertReturningID renders the INSERT used for rows whose generated id the
// caller needs. Only IDReturning dialects get the trailing clause.
func (d Dialect) InsertReturningID(table string, cols []string) string {
	q := d.Insert(table, cols)
	if d.IDStrategy == IDReturning {
		q += " RETURNING id"
	}
	return q
}
