// Package source finds and reads the scraped CSV files. Files are small, so a
// whole file is read into a Table; each Row keeps its 1-based line number and
// the raw text it was parsed from for error reports.
package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// utf8BOM is stripped from the start of a file if present.
const utf8BOM = "\uFEFF"

// ErrMissingColumn reports a required column absent from a file's header.
var ErrMissingColumn = errors.New("missing column")

// Discover returns the files in dir matching pattern, in lexical order. A
// missing directory yields no files.
func Discover(dir, pattern string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s in %s: %w", pattern, dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// NormalizeHeader canonicalizes a header cell: BOM and surrounding space
// removed, lower-cased, inner spaces turned into underscores.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, utf8BOM)
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.Fields(h), "_")
}

// Table is a parsed CSV file.
type Table struct {
	Path   string
	Header []string
	Rows   []Row

	index map[string]int
}

// Row is one data record.
type Row struct {
	Line   int
	Raw    string
	Fields []string

	index map[string]int
}

// ReadFile reads and parses path.
func ReadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	t.Path = path
	return t, nil
}

// Parse reads a header line followed by data rows. Quoting is lenient and
// rows may be ragged; a short row reads its absent trailing cells as empty.
// Input with no header at all yields an empty Table.
func Parse(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, []byte(utf8BOM))

	r := csv.NewReader(bytes.NewReader(data))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	t := &Table{index: map[string]int{}}
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	t.Header = make([]string, len(header))
	for i, h := range header {
		name := NormalizeHeader(h)
		t.Header[i] = name
		if name == "" {
			continue
		}
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}

	for {
		start := r.InputOffset()
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)
		raw := strings.TrimRight(string(data[start:r.InputOffset()]), "\r\n")
		// Blank lines are skipped by the reader, so trim any it stepped over.
		raw = strings.TrimLeft(raw, "\r\n")
		t.Rows = append(t.Rows, Row{Line: line, Raw: raw, Fields: rec, index: t.index})
	}
	return t, nil
}

// Has reports whether the header names col.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Require returns an error wrapping ErrMissingColumn naming every column of
// cols that the header lacks.
func (t *Table) Require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// Lookup returns the cell for col and whether the header has that column.
func (r Row) Lookup(col string) (string, bool) {
	i, ok := r.index[col]
	if !ok {
		return "", false
	}
	if i >= len(r.Fields) {
		return "", true
	}
	return r.Fields[i], true
}

// Get is Lookup for required columns.
func (r Row) Get(col string) (string, error) {
	v, ok := r.Lookup(col)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingColumn, col)
	}
	return v, nil
}

// Value is Lookup that reads an absent column as an empty cell.
func (r Row) Value(col string) string {
	v, _ := r.Lookup(col)
	return v
}
