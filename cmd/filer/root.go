package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jamesainslie/filer/pkg/filer/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	verbose      bool
	quiet        bool
	outputFormat string
	columns      string

	rootCmd = &cobra.Command{
		Use:   "filer",
		Short: "Pick up new data files, transform them once, and keep directories tidy",
		Long: `Filer scans a directory tree for newly arrived data files, remembers
every file it has processed in a ledger, and removes expired files.

The ledger lives at ./hisFile/filter.json by default. Entries older than
hisfile_expire days are dropped every time the ledger is saved.

Examples:
  filer scan /data/in                 # List new files not yet processed
  filer process                       # Run one processing cycle
  filer run --watch                   # Run cycles on a schedule and on file events
  filer purge /data/out --max-age 30  # Delete .txt files older than 30 days
  filer move report.txt /data/done    # Move a file and record it in the ledger
  filer compare a.txt b.txt           # Check that a copy is complete
  filer ledger list                   # Show remembered files`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/filer/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug output on stderr")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: pretty, table, plain, paths, json, yaml")
	rootCmd.PersistentFlags().StringVar(&columns, "columns", "", "comma-separated columns to display (size, age, modified, seen, note, path)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, err
	}

	switch {
	case verbose:
		cfg.Logging.ConsoleLevel = "debug"
	case quiet:
		cfg.Logging.ConsoleLevel = "error"
	}
	if outputFormat != "" {
		cfg.Output = outputFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// parseCommaSeparated splits a comma-separated string and trims whitespace.
func parseCommaSeparated(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
