package output

import (
	"bytes"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter renders a bordered table with go-pretty.
type TableFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TableFormatter) Format(w *bytes.Buffer, r *Result) error {
	cols, err := r.columns()
	if err != nil {
		return err
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if r.Title != "" {
		tw.SetTitle(r.Title)
	}

	header := make(table.Row, len(cols))
	for i, h := range headers(cols) {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, file := range r.Files {
		values := rowValues(cols, file)
		row := make(table.Row, len(values))
		for i, v := range values {
			row[i] = v
		}
		tw.AppendRow(row)
	}

	configs := make([]table.ColumnConfig, 0, len(cols))
	for i, c := range cols {
		align := text.AlignLeft
		if c.alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	w.WriteString(tw.Render())
	w.WriteString("\n")
	for _, warning := range r.Warnings {
		w.WriteString("warning: " + warning + "\n")
	}
	return nil
}

func init() {
	Register("table", func() Formatter {
		return &TableFormatter{}
	})
}

var _ Formatter = (*TableFormatter)(nil)
