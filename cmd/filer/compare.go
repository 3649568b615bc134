package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var compareCmd = &cobra.Command{
	Use:   "compare A B",
	Short: "Check that B is a complete copy of A",
	Long: `Report whether B is a complete copy of A. The files must have the same
size and B must end with the '#' completion marker.

Prints "true" or "false". With --exit-code a false result exits with status 1.`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

var compareExitCode bool

// errIncomplete makes the command fail without printing a second message.
var errIncomplete = errors.New("copy is incomplete")

func init() {
	compareCmd.Flags().BoolVar(&compareExitCode, "exit-code", false, "exit with status 1 when the copy is incomplete")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
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

	ok, err := rm.CompareFiles(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ok)
	if !ok && compareExitCode {
		cmd.SilenceErrors = true
		return errIncomplete
	}
	return nil
}
