package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/filer/pkg/filer/logging"
)

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("invalid configuration")

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level        string            `mapstructure:"level"`
	Path         string            `mapstructure:"path"`
	ConsoleLevel string            `mapstructure:"console_level"`
	Rotation     RotationConfig    `mapstructure:"rotation"`
	Components   map[string]string `mapstructure:"components"`
}

// LedgerConfig selects where processed paths are remembered.
type LedgerConfig struct {
	Path    string `mapstructure:"path"`
	Backend string `mapstructure:"backend"`
}

// ScanConfig configures candidate discovery.
type ScanConfig struct {
	Root    string   `mapstructure:"root"`
	Match   string   `mapstructure:"match"`
	Exclude []string `mapstructure:"exclude"`
}

// RecordConfig configures the delimited record transform.
type RecordConfig struct {
	InputColumns  []string `mapstructure:"input_columns"`
	OutputColumns []string `mapstructure:"output_columns"`
	OutputDir     string   `mapstructure:"output_dir"`
	ArchiveDir    string   `mapstructure:"archive_dir"`
}

// PurgeConfig configures age-based removal.
type PurgeConfig struct {
	Dir        string `mapstructure:"dir"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// RunConfig configures the long-running scheduler.
type RunConfig struct {
	Schedule    string        `mapstructure:"schedule"`
	Watch       bool          `mapstructure:"watch"`
	Attempts    int           `mapstructure:"attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	Debounce    time.Duration `mapstructure:"debounce"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

// HistoryConfig configures the per-cycle run history.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Config represents the application configuration.
type Config struct {
	HisfileExpire int           `mapstructure:"hisfile_expire"`
	FileExpire    int           `mapstructure:"file_expire"`
	Output        string        `mapstructure:"output"`
	Ledger        LedgerConfig  `mapstructure:"ledger"`
	Scan          ScanConfig    `mapstructure:"scan"`
	Record        RecordConfig  `mapstructure:"record"`
	Purge         PurgeConfig   `mapstructure:"purge"`
	Run           RunConfig     `mapstructure:"run"`
	History       HistoryConfig `mapstructure:"history"`
	Logging       LoggingConfig `mapstructure:"logging"`
}

// Load loads configuration from the default file locations and environment.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/filer/config.yaml
//   - $HOME/.config/filer/config.yaml
//   - ./filer.yaml
//
// Environment variables are prefixed with FILER_ (e.g., FILER_HISFILE_EXPIRE).
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from path, or from the default locations
// when path is empty. A missing default file is not an error; a missing
// explicit file is.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "filer"))
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(homeDir, ".config", "filer"))
	}

	v.SetEnvPrefix("FILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := readLocal(v); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// readLocal merges ./filer.yaml when no config file was found elsewhere.
func readLocal(v *viper.Viper) error {
	const local = "filer.yaml"
	if _, err := os.Stat(local); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to check %s: %w", local, err)
	}
	v.SetConfigFile(local)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hisfile_expire", DefaultHisfileExpire)
	v.SetDefault("file_expire", DefaultFileExpire)
	v.SetDefault("output", DefaultOutputFormat)

	v.SetDefault("ledger.path", DefaultLedgerPath)
	v.SetDefault("ledger.backend", DefaultLedgerBackend)

	v.SetDefault("scan.root", DefaultScanRoot)
	v.SetDefault("scan.match", DefaultMatch)
	v.SetDefault("scan.exclude", []string{})

	v.SetDefault("record.input_columns", []string{})
	v.SetDefault("record.output_columns", []string{})
	v.SetDefault("record.output_dir", "")
	v.SetDefault("record.archive_dir", "")

	v.SetDefault("purge.dir", "")
	v.SetDefault("purge.max_age_days", DefaultPurgeMaxAgeDays)

	v.SetDefault("run.schedule", DefaultSchedule)
	v.SetDefault("run.watch", false)
	v.SetDefault("run.attempts", DefaultAttempts)
	v.SetDefault("run.backoff", DefaultBackoff)
	v.SetDefault("run.debounce", DefaultDebounce)
	v.SetDefault("run.metrics_addr", "")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", HistoryDir())
	v.SetDefault("history.retention_days", DefaultHistoryRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", DefaultLogPath)
	v.SetDefault("logging.console_level", "info")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 60)
	v.SetDefault("logging.rotation.max_backups", 0)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{})
}

// resolvePaths expands ~ and makes the ledger and log paths absolute
// against the working directory.
func (c *Config) resolvePaths() error {
	for _, p := range []*string{
		&c.Ledger.Path, &c.Logging.Path, &c.History.Path,
		&c.Scan.Root, &c.Record.OutputDir, &c.Record.ArchiveDir, &c.Purge.Dir,
	} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}

	for _, p := range []*string{&c.Ledger.Path, &c.Logging.Path} {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

// Validate reports the first out-of-range setting, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	switch {
	case c.HisfileExpire < 0:
		return fmt.Errorf("%w: hisfile_expire must not be negative, got %d", ErrInvalid, c.HisfileExpire)
	case c.FileExpire < 0:
		return fmt.Errorf("%w: file_expire must not be negative, got %d", ErrInvalid, c.FileExpire)
	case c.Ledger.Backend != BackendJSON && c.Ledger.Backend != BackendBadger:
		return fmt.Errorf("%w: ledger.backend must be %q or %q, got %q", ErrInvalid, BackendJSON, BackendBadger, c.Ledger.Backend)
	case c.Ledger.Path == "":
		return fmt.Errorf("%w: ledger.path must be set", ErrInvalid)
	case c.Scan.Match != "loose" && c.Scan.Match != "exact":
		return fmt.Errorf("%w: scan.match must be \"loose\" or \"exact\", got %q", ErrInvalid, c.Scan.Match)
	case c.Purge.MaxAgeDays < 0:
		return fmt.Errorf("%w: purge.max_age_days must not be negative, got %d", ErrInvalid, c.Purge.MaxAgeDays)
	case c.Run.Attempts < 1:
		return fmt.Errorf("%w: run.attempts must be at least 1, got %d", ErrInvalid, c.Run.Attempts)
	case c.Run.Backoff < 0:
		return fmt.Errorf("%w: run.backoff must not be negative, got %s", ErrInvalid, c.Run.Backoff)
	case c.History.RetentionDays < 0:
		return fmt.Errorf("%w: history.retention_days must not be negative, got %d", ErrInvalid, c.History.RetentionDays)
	}
	if _, err := logging.ParseMaxSize(c.Logging.Rotation.MaxSize); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Record.OutputDir != "" && samePath(c.Record.OutputDir, c.Scan.Root) {
		return fmt.Errorf("%w: record.output_dir must differ from scan.root, got %q", ErrInvalid, c.Record.OutputDir)
	}
	return nil
}

// samePath reports whether a and b name the same location once made absolute.
func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// LoggingProviderConfig converts the logging section for logging.NewProvider.
func (c *Config) LoggingProviderConfig() (logging.Config, error) {
	maxSize, err := logging.ParseMaxSize(c.Logging.Rotation.MaxSize)
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{
		Level:        c.Logging.Level,
		Path:         c.Logging.Path,
		ConsoleLevel: c.Logging.ConsoleLevel,
		Components:   c.Logging.Components,
		Rotation: logging.RotationConfig{
			MaxSize:    maxSize,
			MaxAge:     c.Logging.Rotation.MaxAge,
			MaxBackups: c.Logging.Rotation.MaxBackups,
			Daily:      c.Logging.Rotation.Daily,
		},
	}, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "filer"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "filer"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault writes a default config file if none exists and returns
// its path. An existing file is left untouched.
func WriteDefault() (string, error) {
	if err := EnsureConfigDir(); err != nil {
		return "", err
	}

	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# filer configuration

# Days a processed path stays in the ledger
hisfile_expire: %d

# Only files modified within this many days are picked up
file_expire: %d

# Default output format: pretty, table, plain, paths, json, yaml
output: %s

ledger:
  # Relative paths resolve against the working directory
  path: %s
  # json or badger
  backend: %s

scan:
  root: %s
  # loose: name ends in ".txt" or "out"; exact: extension is .txt
  match: %s
  exclude: []

record:
  input_columns: []
  output_columns: []
  output_dir: ""
  archive_dir: ""

purge:
  dir: ""
  max_age_days: %d

run:
  schedule: "%s"
  watch: false
  attempts: %d
  backoff: %s
  debounce: %s
  metrics_addr: ""

history:
  enabled: true
  path: %s
  retention_days: %d

logging:
  # Log level: debug, info, warn, error
  level: info
  path: %s
  console_level: info
  rotation:
    max_size: 10MB
    max_age: 60       # days
    max_backups: 0
    daily: true
  components: {}
`, DefaultHisfileExpire, DefaultFileExpire, DefaultOutputFormat,
		DefaultLedgerPath, DefaultLedgerBackend, DefaultScanRoot, DefaultMatch,
		DefaultPurgeMaxAgeDays, DefaultSchedule, DefaultAttempts, DefaultBackoff, DefaultDebounce,
		HistoryDir(), DefaultHistoryRetentionDays, DefaultLogPath)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/filer/.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "filer")
}

// HistoryDir returns the default run history directory.
func HistoryDir() string {
	return filepath.Join(DataDir(), "history")
}

// LockPath returns the lock file guarding a ledger at ledgerPath.
func LockPath(ledgerPath string) string {
	return ledgerPath + ".lock"
}
