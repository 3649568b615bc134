package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/jamesainslie/filer/pkg/filer/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage filer configuration settings.

Configuration is loaded from the --config flag, or else from:
  1. $XDG_CONFIG_HOME/filer/config.yaml (if set)
  2. ~/.config/filer/config.yaml
  3. ./filer.yaml

Environment variables override config file settings using the FILER_ prefix:
  FILER_HISFILE_EXPIRE=14
  FILER_FILE_EXPIRE=1
  FILER_LEDGER_BACKEND=badger
  FILER_RUN_ATTEMPTS=5`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration from all sources.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	Args: cobra.NoArgs,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	writeConfig(out, cfg)

	fmt.Fprintln(out, "\nEnvironment Overrides:")
	fmt.Fprintln(out, "----------------------")
	overrides := envOverrides(os.Environ())
	if len(overrides) == 0 {
		fmt.Fprintln(out, "(none)")
	}
	for _, kv := range overrides {
		fmt.Fprintln(out, kv)
	}
	return nil
}

func writeConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintln(w, "----------------------")
	fmt.Fprintf(w, "hisfile_expire:          %d days\n", cfg.HisfileExpire)
	fmt.Fprintf(w, "file_expire:             %d days\n", cfg.FileExpire)
	fmt.Fprintf(w, "output:                  %s\n", cfg.Output)
	fmt.Fprintf(w, "ledger.path:             %s\n", cfg.Ledger.Path)
	fmt.Fprintf(w, "ledger.backend:          %s\n", cfg.Ledger.Backend)
	fmt.Fprintf(w, "scan.root:               %s\n", cfg.Scan.Root)
	fmt.Fprintf(w, "scan.match:              %s\n", cfg.Scan.Match)
	fmt.Fprintf(w, "scan.exclude:            %v\n", cfg.Scan.Exclude)
	fmt.Fprintf(w, "record.input_columns:    %v\n", cfg.Record.InputColumns)
	fmt.Fprintf(w, "record.output_columns:   %v\n", cfg.Record.OutputColumns)
	fmt.Fprintf(w, "record.output_dir:       %s\n", cfg.Record.OutputDir)
	fmt.Fprintf(w, "record.archive_dir:      %s\n", cfg.Record.ArchiveDir)
	fmt.Fprintf(w, "purge.dir:               %s\n", cfg.Purge.Dir)
	fmt.Fprintf(w, "purge.max_age_days:      %d\n", cfg.Purge.MaxAgeDays)
	fmt.Fprintf(w, "run.schedule:            %s\n", cfg.Run.Schedule)
	fmt.Fprintf(w, "run.watch:               %t\n", cfg.Run.Watch)
	fmt.Fprintf(w, "run.attempts:            %d\n", cfg.Run.Attempts)
	fmt.Fprintf(w, "run.backoff:             %s\n", cfg.Run.Backoff)
	fmt.Fprintf(w, "run.debounce:            %s\n", cfg.Run.Debounce)
	fmt.Fprintf(w, "run.metrics_addr:        %s\n", cfg.Run.MetricsAddr)
	fmt.Fprintf(w, "history.enabled:         %t\n", cfg.History.Enabled)
	fmt.Fprintf(w, "history.path:            %s\n", cfg.History.Path)
	fmt.Fprintf(w, "history.retention_days:  %d\n", cfg.History.RetentionDays)
	fmt.Fprintf(w, "logging.level:           %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "logging.path:            %s\n", cfg.Logging.Path)
	fmt.Fprintf(w, "logging.console_level:   %s\n", cfg.Logging.ConsoleLevel)
	fmt.Fprintf(w, "logging.rotation:        max_size=%s max_age=%d max_backups=%d daily=%t\n",
		cfg.Logging.Rotation.MaxSize, cfg.Logging.Rotation.MaxAge,
		cfg.Logging.Rotation.MaxBackups, cfg.Logging.Rotation.Daily)
}

// envOverrides returns the FILER_ variables in environ, sorted.
func envOverrides(environ []string) []string {
	var out []string
	for _, kv := range environ {
		if strings.HasPrefix(kv, "FILER_") {
			out = append(out, kv)
		}
	}
	sort.Strings(out)
	return out
}

func runConfigEdit(_ *cobra.Command, _ []string) error {
	configPath, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'filer config edit' to modify it.")
		return nil
	}

	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", configPath)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	configPath := cfgFile
	if configPath == "" {
		var err error
		configPath, err = config.ConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}
	return nil
}
