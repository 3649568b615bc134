package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge DIR",
	Short: "Delete expired .txt files from a directory",
	Long: `Delete regular files directly inside DIR whose name ends in ".txt" and
whose age in whole days is greater than --max-age (default: purge.max_age_days).
Subdirectories are not entered.`,
	Args: cobra.ExactArgs(1),
	RunE: runPurge,
}

var purgeMaxAge int

func init() {
	purgeCmd.Flags().IntVar(&purgeMaxAge, "max-age", -1, "age in whole days a file must exceed (default: purge.max_age_days)")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	maxAge := cfg.Purge.MaxAgeDays
	if purgeMaxAge >= 0 {
		maxAge = purgeMaxAge
	}

	a, err := openApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	rm, err := a.retention()
	if err != nil {
		return err
	}

	removed, err := rm.PurgeExpired(args[0], maxAge)
	a.metrics.FilesPurged(len(removed))
	for _, path := range removed {
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		printInfo("No files removed.")
	}
	return nil
}
