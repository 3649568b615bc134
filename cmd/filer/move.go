package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var moveCmd = &cobra.Command{
	Use:   "move SRC DEST",
	Short: "Move a file into a directory and record it in the ledger",
	Long: `Move SRC into the directory DEST, creating DEST if needed. The absolute
source path is then recorded in the ledger and expired entries are evicted.

Moving fails if DEST already holds a file with the same name.`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

func init() {
	rootCmd.AddCommand(moveCmd)
}

func runMove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	src, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving %s: %w", args[0], err)
	}

	a, err := openApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	rm, err := a.retention()
	if err != nil {
		return err
	}

	dst, err := rm.MoveAndMark(src, args[1])
	if dst != "" {
		a.metrics.FileMoved()
		fmt.Fprintln(cmd.OutOrStdout(), dst)
	}
	return err
}
