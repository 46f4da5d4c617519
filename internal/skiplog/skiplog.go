// Package skiplog records rows a loader gave up on as a CSV file, one line
// per row, so they can be inspected or replayed after a run.
package skiplog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Header is the first row of every skip log.
var Header = []string{"reason", "file", "line_number", "raw_line"}

// Log is an open skip log. It is not safe for concurrent use.
type Log struct {
	f       *os.File
	w       *csv.Writer
	reasons map[string]int
	closed  bool
}

// New creates path (and its parent directories) and writes the header.
func New(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header %s: %w", path, err)
	}
	return &Log{f: f, w: w, reasons: make(map[string]int)}, nil
}

// Add appends one skipped row.
func (l *Log) Add(reason, file string, line int, raw string) error {
	l.reasons[reason]++
	return l.w.Write([]string{reason, file, strconv.Itoa(line), raw})
}

// Counts returns the number of rows added per reason.
func (l *Log) Counts() map[string]int {
	out := make(map[string]int, len(l.reasons))
	for k, v := range l.reasons {
		out[k] = v
	}
	return out
}

// Close flushes and closes the file. Calling it twice is harmless.
func (l *Log) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		_ = l.f.Close()
		return err
	}
	return l.f.Close()
}
