// Package record reads and writes '|' delimited record files.
//
// Input files have no header: every line is one record whose fields are
// named by the caller. Lines with the wrong number of fields are skipped
// and counted. Output files carry a header row followed by the selected
// columns of every record.
package record

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Delimiter separates fields in input and output files.
const Delimiter = '|'

// FileMode is the permission set on written output files.
const FileMode = 0o644

// ErrUnknownColumn is returned when a requested column is not in the table.
var ErrUnknownColumn = errors.New("unknown column")

// Table is a parsed record file. Every row has exactly len(Columns) fields.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ParseStats describes what Parse did with its input.
type ParseStats struct {
	Lines   int
	Skipped int
}

// Parse reads r line by line. Line terminators are removed, invalid UTF-8
// bytes are dropped and the remainder is split on Delimiter.
func Parse(r io.Reader, columns []string) (*Table, ParseStats, error) {
	if len(columns) == 0 {
		return nil, ParseStats{}, errors.New("at least one input column is required")
	}

	t := &Table{Columns: append([]string(nil), columns...)}
	var stats ParseStats

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			stats.Lines++
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			line = strings.ToValidUTF8(line, "")

			fields := strings.Split(line, string(Delimiter))
			if len(fields) != len(columns) {
				stats.Skipped++
			} else {
				t.Rows = append(t.Rows, fields)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("reading records: %w", err)
		}
	}
	return t, stats, nil
}

// ReadFile parses the file at path.
func ReadFile(path string, columns []string) (*Table, ParseStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	t, stats, err := Parse(f, columns)
	if err != nil {
		return nil, stats, fmt.Errorf("%s: %w", path, err)
	}
	return t, stats, nil
}

// Render writes a header row and every row of t restricted to columns, in
// the given order. Fields are quoted only when they contain the delimiter,
// a quote or a line break. An empty columns list selects every column.
func (t *Table) Render(w io.Writer, columns []string) error {
	if len(columns) == 0 {
		columns = t.Columns
	}

	index := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, ok := index[c]; !ok {
			index[c] = i
		}
	}
	positions := make([]int, len(columns))
	for i, c := range columns {
		pos, ok := index[c]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, c)
		}
		positions[i] = pos
	}

	cw := csv.NewWriter(w)
	cw.Comma = Delimiter

	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	out := make([]string, len(positions))
	for _, row := range t.Rows {
		for i, pos := range positions {
			out[i] = row[pos]
		}
		if err := cw.Write(out); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile renders t to path through a temporary file in the same
// directory, creating the directory if needed.
func (t *Table) WriteFile(path string, columns []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(FileMode); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("setting output permissions: %w", err)
	}

	bw := bufio.NewWriter(tmp)
	if err := t.Render(bw, columns); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
