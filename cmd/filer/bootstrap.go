package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/jamesainslie/filer/pkg/filer/config"
	"github.com/jamesainslie/filer/pkg/filer/fsops"
	"github.com/jamesainslie/filer/pkg/filer/history"
	"github.com/jamesainslie/filer/pkg/filer/ledger"
	"github.com/jamesainslie/filer/pkg/filer/logging"
	"github.com/jamesainslie/filer/pkg/filer/metrics"
	"github.com/jamesainslie/filer/pkg/filer/output"
	"github.com/jamesainslie/filer/pkg/filer/pipeline"
	"github.com/jamesainslie/filer/pkg/filer/retention"
	"github.com/jamesainslie/filer/pkg/filer/scanner"
)

// ErrLedgerBusy is returned when another filer process holds the ledger lock.
var ErrLedgerBusy = errors.New("ledger is in use by another filer process")

// app holds the collaborators shared by every command.
type app struct {
	cfg     *config.Config
	logs    *logging.Provider
	metrics *metrics.Metrics
	ledger  *ledger.Ledger
	lock    *flock.Flock
}

// openApp wires logging, metrics and the ledger. With exclusive set the
// ledger lock is taken first, so only one writer runs at a time. A badger
// ledger admits a single open process, so it is always locked; read-only
// commands then fail with ErrLedgerBusy while a writer such as filer run
// holds it.
func openApp(cfg *config.Config, exclusive bool) (*app, error) {
	logCfg, err := cfg.LoggingProviderConfig()
	if err != nil {
		return nil, fmt.Errorf("parsing logging config: %w", err)
	}
	logs, err := logging.NewProvider(logCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}

	a := &app{cfg: cfg, logs: logs, metrics: metrics.New(nil)}

	if exclusive || cfg.Ledger.Backend == config.BackendBadger {
		lock, err := acquireLock(cfg.Ledger.Path)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.lock = lock
	}

	store, err := openStore(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	l, err := ledger.New(store, cfg.HisfileExpire,
		ledger.WithLogger(logs.Get("ledger")),
		ledger.WithObserver(a.metrics),
	)
	if err != nil {
		_ = store.Close()
		_ = a.Close()
		return nil, err
	}
	a.ledger = l
	a.metrics.LedgerSize(l.Len())

	return a, nil
}

// Close releases the ledger, the lock and the log file.
func (a *app) Close() error {
	var errs []error
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	if a.lock != nil {
		errs = append(errs, a.lock.Unlock())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

// storePath returns where the configured backend keeps its data. Badger
// needs a directory, so a ".json" ledger path becomes ".db".
func storePath(cfg *config.Config) string {
	if cfg.Ledger.Backend != config.BackendBadger {
		return cfg.Ledger.Path
	}
	if ext := filepath.Ext(cfg.Ledger.Path); ext == ".json" {
		return strings.TrimSuffix(cfg.Ledger.Path, ext) + ".db"
	}
	return cfg.Ledger.Path
}

func openStore(cfg *config.Config) (ledger.Store, error) {
	path := storePath(cfg)
	switch cfg.Ledger.Backend {
	case config.BackendBadger:
		s, err := ledger.OpenBadgerStore(path)
		if err != nil {
			return nil, fmt.Errorf("opening badger ledger: %w", err)
		}
		return s, nil
	default:
		s, err := ledger.NewJSONStore(path)
		if err != nil {
			return nil, fmt.Errorf("opening json ledger: %w", err)
		}
		return s, nil
	}
}

// acquireLock takes a non-blocking exclusive lock next to the ledger.
func acquireLock(ledgerPath string) (*flock.Flock, error) {
	if err := fsops.EnsureDir(filepath.Dir(ledgerPath)); err != nil {
		return nil, err
	}
	lock := flock.New(config.LockPath(ledgerPath))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking ledger: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLedgerBusy, lock.Path())
	}
	return lock, nil
}

func (a *app) scanner() (*scanner.Scanner, error) {
	match, err := scanner.ParseMatch(a.cfg.Scan.Match)
	if err != nil {
		return nil, err
	}
	return scanner.New(a.ledger, scanner.Options{
		Match:         match,
		FreshnessDays: a.cfg.FileExpire,
		Exclude:       a.cfg.Scan.Exclude,
	}, a.logs.Get("scanner"))
}

func (a *app) retention() (*retention.Manager, error) {
	return retention.New(a.ledger, a.logs.Get("retention"))
}

func (a *app) history() (*history.History, error) {
	if !a.cfg.History.Enabled {
		return nil, nil
	}
	return history.New(a.cfg.History.Path)
}

func (a *app) processor() (*pipeline.Processor, error) {
	root, err := filepath.Abs(a.cfg.Scan.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving scan root: %w", err)
	}
	sc, err := a.scanner()
	if err != nil {
		return nil, err
	}
	rm, err := a.retention()
	if err != nil {
		return nil, err
	}
	h, err := a.history()
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Deps{
		Scanner:   sc,
		Ledger:    a.ledger,
		Retention: rm,
		History:   h,
		Metrics:   a.metrics,
		Logger:    a.logs.Get("pipeline"),
	}, pipeline.Options{
		Root:            root,
		OutputDir:       a.cfg.Record.OutputDir,
		ArchiveDir:      a.cfg.Record.ArchiveDir,
		InputColumns:    a.cfg.Record.InputColumns,
		OutputColumns:   a.cfg.Record.OutputColumns,
		PurgeDir:        a.cfg.Purge.Dir,
		PurgeMaxAgeDays: a.cfg.Purge.MaxAgeDays,
		Attempts:        a.cfg.Run.Attempts,
		Backoff:         a.cfg.Run.Backoff,
	})
}

// watchIgnore lists the paths a cycle writes to, so their changes never
// trigger another cycle.
func (a *app) watchIgnore() []string {
	paths := []string{
		storePath(a.cfg),
		config.LockPath(a.cfg.Ledger.Path),
		a.cfg.Record.OutputDir,
		a.cfg.Record.ArchiveDir,
	}
	if a.cfg.History.Enabled {
		paths = append(paths, a.cfg.History.Path)
	}
	return append(paths, a.cfg.Logging.Path)
}

// render formats result with the named formatter and writes it to w.
func render(w io.Writer, format string, result *output.Result) error {
	formatter, err := output.Get(format)
	if err != nil {
		return fmt.Errorf("unknown output format %q: available formats are %v", format, output.Available())
	}
	if cols := parseCommaSeparated(columns); len(cols) > 0 {
		result.Columns = cols
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, result); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}
