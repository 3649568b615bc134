// Package config provides configuration management for filer.
package config

import "time"

// Default configuration values for filer.
const (
	// DefaultHisfileExpire is the number of days a ledger entry is kept.
	DefaultHisfileExpire = 30

	// DefaultFileExpire is the freshness window in days for new candidates.
	DefaultFileExpire = 3

	// DefaultLedgerPath is the ledger file, relative to the working directory.
	DefaultLedgerPath = "hisFile/filter.json"

	// DefaultLedgerBackend selects the JSON file store.
	DefaultLedgerBackend = BackendJSON

	// DefaultScanRoot is the directory scanned when none is specified.
	DefaultScanRoot = "."

	// DefaultMatch is the candidate match mode.
	DefaultMatch = "loose"

	// DefaultPurgeMaxAgeDays is the age after which purge removes a file.
	DefaultPurgeMaxAgeDays = 30

	// DefaultSchedule runs a cycle every five minutes.
	DefaultSchedule = "*/5 * * * *"

	// DefaultAttempts is the number of tries per cycle.
	DefaultAttempts = 3

	// DefaultBackoff is the pause between failed attempts.
	DefaultBackoff = 5 * time.Second

	// DefaultDebounce coalesces bursts of filesystem events.
	DefaultDebounce = 2 * time.Second

	// DefaultHistoryRetentionDays is the number of days run history is kept.
	DefaultHistoryRetentionDays = 30

	// DefaultLogPath is the log file, relative to the working directory.
	DefaultLogPath = "logs/app.log"

	// DefaultOutputFormat is used by commands that print file lists.
	DefaultOutputFormat = "pretty"
)

// Ledger storage backends.
const (
	BackendJSON   = "json"
	BackendBadger = "badger"
)
