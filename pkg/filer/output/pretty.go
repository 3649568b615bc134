package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// PrettyFormatter formats output with colors and boxes using lipgloss.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	cols, err := r.columns()
	if err != nil {
		return err
	}

	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatRows(r, cols))
	w.WriteString(f.formatFooter(r))

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
		w.WriteString("\n")
		for _, warning := range r.Warnings {
			w.WriteString(WarningStyle.Render("  " + warning))
			w.WriteString("\n")
		}
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	var lines []string
	if r.Title != "" {
		lines = append(lines, TitleStyle.Render(r.Title))
	}
	lines = append(lines, fmt.Sprintf("%s %s", LabelStyle.Render("Source:"), ValueStyle.Render(r.Source)))
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatRows(r *Result, cols []column) string {
	if len(r.Files) == 0 {
		return MutedStyle.Render("  No files") + "\n"
	}

	rows := make([][]string, len(r.Files))
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = lipgloss.Width(c.header)
	}
	for i, file := range r.Files {
		rows[i] = rowValues(cols, file)
		for j, v := range rows[i] {
			if w := lipgloss.Width(v); w > widths[j] {
				widths[j] = w
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("  ")
	for i, c := range cols {
		sb.WriteString(TableHeaderStyle.Render(pad(c.header, widths[i], c.alignRight)))
		sb.WriteString("  ")
	}
	sb.WriteString("\n")

	for _, row := range rows {
		sb.WriteString("  ")
		for i, c := range cols {
			cell := pad(row[i], widths[i], c.alignRight)
			if c.header == "SIZE" {
				cell = SuccessStyle.Render(cell)
			} else {
				cell = ValueStyle.Render(cell)
			}
			sb.WriteString(cell)
			sb.WriteString("  ")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Result) string {
	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Files:"), ValueStyle.Render(fmt.Sprintf("%d", len(r.Files)))),
	}
	if total := r.TotalSize(); total > 0 {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Total:"), SuccessStyle.Render(humanize.Bytes(uint64(total)))))
	}
	parts = append(parts, MutedStyle.Render("Use -o plain for unformatted output"))
	return FooterBox.Render(strings.Join(parts, "  "))
}

// pad pads s with spaces to width, on the left when right is set.
func pad(s string, width int, right bool) string {
	n := width - lipgloss.Width(s)
	if n <= 0 {
		return s
	}
	if right {
		return strings.Repeat(" ", n) + s
	}
	return s + strings.Repeat(" ", n)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
