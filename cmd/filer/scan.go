package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/jamesainslie/filer/pkg/filer/ledger"
	"github.com/jamesainslie/filer/pkg/filer/output"
	"github.com/jamesainslie/filer/pkg/filer/scanner"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan [root]",
	Short: "List new files that have not been processed",
	Long: `Walk root (default: scan.root) and list candidate files that are not in
the ledger and were modified less than file_expire whole days ago.

With --all every candidate is listed, each annotated as new, seen or stale.
Scanning never modifies the ledger.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

var scanAll bool

func init() {
	scanCmd.Flags().BoolVarP(&scanAll, "all", "a", false, "list every candidate, not just new ones")
	rootCmd.AddCommand(scanCmd)
}

// Notes attached to candidates in --all mode.
const (
	noteNew   = "new"
	noteSeen  = "seen"
	noteStale = "stale"
)

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	root := cfg.Scan.Root
	if len(args) > 0 {
		root = args[0]
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving scan root: %w", err)
	}

	a, err := openApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	sc, err := a.scanner()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	printVerbose("Scanning %s", root)

	var paths []string
	if scanAll {
		paths, err = sc.ListCandidates(ctx, root)
	} else {
		paths, err = sc.DiscoverNew(ctx, root)
	}
	if err != nil {
		return err
	}

	now := time.Now()
	result := &output.Result{
		Title:   "New files",
		Source:  root,
		Columns: []string{output.ColumnSize, output.ColumnAge, output.ColumnModified, output.ColumnPath},
	}
	if scanAll {
		result.Title = "Candidate files"
		result.Columns = []string{output.ColumnSize, output.ColumnAge, output.ColumnSeen, output.ColumnNote, output.ColumnPath}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		fi := output.NewFileInfo(path, info, scanner.AgeDays(now, info.ModTime()))
		if scanAll {
			fi.Seen, fi.Note = classify(a.ledger, path, fi.AgeDays, cfg.FileExpire)
		}
		result.Files = append(result.Files, fi)
	}

	return render(cmd.OutOrStdout(), cfg.Output, result)
}

// classify reports when path was recorded and how discovery treats it.
func classify(l *ledger.Ledger, path string, ageDays, freshnessDays int) (time.Time, string) {
	if seen, ok := l.Lookup(path); ok {
		return seen, noteSeen
	}
	if ageDays >= freshnessDays {
		return time.Time{}, noteStale
	}
	return time.Time{}, noteNew
}
