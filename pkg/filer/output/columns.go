package output

import (
	"fmt"
	"strings"
	"time"
)

// timeLayout matches the ledger's timestamp form.
const timeLayout = "2006-01-02 15:04:05"

type column struct {
	header     string
	alignRight bool
	value      func(FileInfo) string
}

var columnDefs = map[string]column{
	ColumnSize: {header: "SIZE", alignRight: true, value: func(f FileInfo) string { return f.SizeHuman }},
	ColumnAge: {header: "AGE", alignRight: true, value: func(f FileInfo) string {
		return fmt.Sprintf("%dd", f.AgeDays)
	}},
	ColumnModified: {header: "MODIFIED", value: func(f FileInfo) string { return formatTime(f.ModTime) }},
	ColumnSeen:     {header: "SEEN", value: func(f FileInfo) string { return formatTime(f.Seen) }},
	ColumnNote:     {header: "NOTE", value: func(f FileInfo) string { return f.Note }},
	ColumnPath:     {header: "PATH", value: func(f FileInfo) string { return f.Path }},
}

// columns resolves r.Columns, rejecting unknown names.
func (r *Result) columns() ([]column, error) {
	names := r.Columns
	if len(names) == 0 {
		names = DefaultColumns
	}
	cols := make([]column, 0, len(names))
	for _, name := range names {
		c, ok := columnDefs[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown output column: %s", name)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func headers(cols []column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.header
	}
	return out
}

func rowValues(cols []column, f FileInfo) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.value(f)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}
