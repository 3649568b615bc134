package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jamesainslie/filer/pkg/filer/config"
	"github.com/jamesainslie/filer/pkg/filer/history"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View processing history",
	Long: `View the history of processing cycles.

Every cycle run by 'filer process' or 'filer run' is stored with the files
it discovered, processed, archived and purged.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show details of a specific cycle",
	Long:  `Display detailed information about a specific cycle by its ID.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than history.retention_days.`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var (
	historyLimit int
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// getHistory returns the history store with the configured directory.
func getHistory() (*history.History, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	h, err := history.New(cfg.History.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize history: %w", err)
	}
	return h, cfg, nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	h, cfg, err := getHistory()
	if err != nil {
		return err
	}

	entries, err := h.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	out := cmd.OutOrStdout()
	if handled, err := writeStructured(out, cfg.Output, entries); handled {
		return err
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'filer process' to run a cycle.")
		return nil
	}

	writeHistoryTable(out, entries)
	fmt.Fprintln(out, "Use 'filer history show <id>' for details on a specific entry.")
	return nil
}

// writeHistoryTable prints one line per cycle.
func writeHistoryTable(w io.Writer, entries []history.Entry) {
	fmt.Fprintf(w, "\n%-36s  %-19s  %-8s  %-9s  %-7s  %s\n", "ID", "STARTED", "STATUS", "PROCESSED", "PURGED", "DURATION")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, e := range entries {
		status := "ok"
		if e.Failed() {
			status = "failed"
		}
		fmt.Fprintf(w, "%-36s  %-19s  %-8s  %-9d  %-7d  %s\n",
			e.ID,
			e.StartedAt.Format(time.DateTime),
			status,
			e.Summary.Processed,
			e.Summary.Purged,
			e.Duration().Round(time.Millisecond),
		)
	}

	fmt.Fprintln(w, strings.Repeat("-", 100))
	fmt.Fprintf(w, "\nShowing %d entries. Use --limit to see more.\n", len(entries))
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	h, cfg, err := getHistory()
	if err != nil {
		return err
	}

	entry, err := h.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	out := cmd.OutOrStdout()
	if handled, err := writeStructured(out, cfg.Output, entry); handled {
		return err
	}
	writeHistoryEntry(out, entry)
	return nil
}

// maxListedFiles caps the files printed per section of an entry.
const maxListedFiles = 50

func writeHistoryEntry(w io.Writer, e *history.Entry) {
	fmt.Fprintln(w, "\nCycle Details")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "ID:         %s\n", e.ID)
	fmt.Fprintf(w, "Started:    %s\n", e.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Duration:   %s\n", e.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "Attempt:    %d\n", e.Attempts)
	fmt.Fprintf(w, "Discovered: %d\n", e.Summary.Discovered)
	fmt.Fprintf(w, "Processed:  %d\n", e.Summary.Processed)
	fmt.Fprintf(w, "Archived:   %d\n", e.Summary.Archived)
	fmt.Fprintf(w, "Skipped:    %d lines\n", e.Summary.SkippedLines)
	fmt.Fprintf(w, "Purged:     %d\n", e.Summary.Purged)
	if e.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", e.Error)
	}

	if len(e.Processed) > 0 {
		fmt.Fprintln(w, "\nProcessed:")
		fmt.Fprintln(w, strings.Repeat("-", 60))
		fmt.Fprintf(w, "%-6s  %-7s  %s\n", "ROWS", "SKIPPED", "SOURCE -> OUTPUT")
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for i, rec := range e.Processed {
			if i == maxListedFiles {
				fmt.Fprintf(w, "\n... and %d more files\n", len(e.Processed)-maxListedFiles)
				break
			}
			fmt.Fprintf(w, "%-6d  %-7d  %s -> %s\n", rec.Rows, rec.Skipped, rec.Source, rec.Output)
		}
	}

	if len(e.Purged) > 0 {
		fmt.Fprintln(w, "\nPurged:")
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for i, path := range e.Purged {
			if i == maxListedFiles {
				fmt.Fprintf(w, "\n... and %d more files\n", len(e.Purged)-maxListedFiles)
				break
			}
			fmt.Fprintln(w, path)
		}
	}
}

// writeStructured encodes v as JSON or YAML when format asks for it.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

func runHistoryClean(cmd *cobra.Command, _ []string) error {
	h, cfg, err := getHistory()
	if err != nil {
		return err
	}

	removed, err := h.Cleanup(cfg.History.RetentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	if removed == 0 {
		printInfo("No entries older than %d days.", cfg.History.RetentionDays)
	} else {
		printInfo("Removed %d entries older than %d days.", removed, cfg.History.RetentionDays)
	}
	return nil
}
