package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/filer/pkg/filer/ledger"
	"github.com/jamesainslie/filer/pkg/filer/output"
	"github.com/jamesainslie/filer/pkg/filer/scanner"
	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and maintain the processed-file ledger",
	Long: `The ledger remembers every processed file with the time it was recorded.
Entries older than hisfile_expire days are dropped whenever the ledger is saved.`,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ledger entries",
	Args:  cobra.NoArgs,
	RunE:  runLedgerList,
}

var ledgerEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Drop expired entries and save the ledger",
	Args:  cobra.NoArgs,
	RunE:  runLedgerEvict,
}

var ledgerRecordCmd = &cobra.Command{
	Use:   "record PATH...",
	Short: "Mark files as processed",
	Long: `Record each PATH, made absolute, in the ledger and save it. Recorded files
are skipped by discovery until their entry expires.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLedgerRecord,
}

var ledgerRecordAt string

func init() {
	ledgerRecordCmd.Flags().StringVar(&ledgerRecordAt, "at", "", `record time as "YYYY-MM-DD HH:MM:SS" (default: now)`)

	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerEvictCmd)
	ledgerCmd.AddCommand(ledgerRecordCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func runLedgerList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := openApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	result := ledgerResult(a.ledger.Entries(), storePath(cfg), time.Now())
	return render(cmd.OutOrStdout(), cfg.Output, result)
}

// ledgerResult lists entries with the current state of each file.
func ledgerResult(entries []ledger.Entry, source string, now time.Time) *output.Result {
	result := &output.Result{
		Title:   "Ledger",
		Source:  source,
		Columns: []string{output.ColumnSeen, output.ColumnSize, output.ColumnNote, output.ColumnPath},
	}
	for _, e := range entries {
		fi := output.FileInfo{Path: e.Path, Name: filepath.Base(e.Path), Seen: e.Seen}
		if info, err := os.Stat(e.Path); err == nil {
			fi = output.NewFileInfo(e.Path, info, scanner.AgeDays(now, info.ModTime()))
			fi.Seen = e.Seen
		} else {
			fi.Note = "missing"
		}
		result.Files = append(result.Files, fi)
	}
	return result
}

func runLedgerEvict(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := openApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	before := a.ledger.Len()
	if err := a.ledger.Evict(); err != nil {
		return err
	}
	printInfo("Evicted %d of %d entries; %d remain.", before-a.ledger.Len(), before, a.ledger.Len())
	return nil
}

func runLedgerRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var at time.Time
	if ledgerRecordAt != "" {
		at, err = ledger.ParseTimestamp(ledgerRecordAt)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}

	a, err := openApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", arg, err)
		}
		if at.IsZero() {
			a.ledger.Record(path)
		} else {
			a.ledger.RecordAt(path, at)
		}
		printVerbose("Recorded %s", path)
	}

	if err := a.ledger.Evict(); err != nil {
		return err
	}
	printInfo("Recorded %d path(s); ledger holds %d entries.", len(args), a.ledger.Len())
	return nil
}
