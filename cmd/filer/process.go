package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamesainslie/filer/pkg/filer/history"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one processing cycle",
	Long: `Run one cycle: discover new files under scan.root, transform each into
record.output_dir, record it in the ledger, optionally archive it, and purge
expired files from purge.dir.

A failed cycle is retried up to run.attempts times, run.backoff apart.`,
	Args: cobra.NoArgs,
	RunE: runProcess,
}

var (
	processRoot    string
	processNoRetry bool
)

func init() {
	processCmd.Flags().StringVar(&processRoot, "root", "", "directory to scan (overrides scan.root)")
	processCmd.Flags().BoolVar(&processNoRetry, "no-retry", false, "run a single attempt")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if processRoot != "" {
		cfg.Scan.Root = processRoot
	}

	a, err := openApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.processor()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var entry *history.Entry
	if processNoRetry {
		entry, err = p.RunCycle(ctx)
	} else {
		entry, err = p.Run(ctx)
	}
	if err != nil {
		return err
	}

	if !quiet {
		printSummary(cmd.OutOrStdout(), entry)
	}
	return nil
}

// printSummary writes a short report of one cycle.
func printSummary(w io.Writer, e *history.Entry) {
	fmt.Fprintf(w, "Cycle %s finished in %s\n", e.ID, e.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  discovered:    %d\n", e.Summary.Discovered)
	fmt.Fprintf(w, "  processed:     %d\n", e.Summary.Processed)
	fmt.Fprintf(w, "  archived:      %d\n", e.Summary.Archived)
	fmt.Fprintf(w, "  skipped lines: %d\n", e.Summary.SkippedLines)
	fmt.Fprintf(w, "  purged:        %d\n", e.Summary.Purged)
}
