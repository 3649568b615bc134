// Package pipeline runs processing cycles.
//
// A cycle discovers new files, parses each one, writes the selected
// columns to the output directory and records the source in the ledger so
// it is never picked up again. Optionally the source is archived and
// expired output files are purged. Run retries a failed cycle as a whole.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/filer/pkg/filer/history"
	"github.com/jamesainslie/filer/pkg/filer/ledger"
	"github.com/jamesainslie/filer/pkg/filer/logging"
	"github.com/jamesainslie/filer/pkg/filer/metrics"
	"github.com/jamesainslie/filer/pkg/filer/record"
)

// Discoverer finds files that have not been processed.
type Discoverer interface {
	DiscoverNew(ctx context.Context, root string) ([]string, error)
}

// Archiver moves processed files and purges expired ones.
type Archiver interface {
	MoveAndMark(src, destDir string) (string, error)
	PurgeExpired(dir string, maxAgeDays int) ([]string, error)
}

// Options configures a Processor.
type Options struct {
	// Root is the directory tree scanned for new files.
	Root string

	// OutputDir receives one rendered file per input, under the input's base name.
	OutputDir string

	// ArchiveDir, when set, receives each source after it is processed.
	ArchiveDir string

	// InputColumns names the fields of every input line.
	InputColumns []string

	// OutputColumns selects and orders the rendered columns. Empty keeps all.
	OutputColumns []string

	// PurgeDir, when set, is purged of expired ".txt" files after each cycle.
	PurgeDir string

	// PurgeMaxAgeDays is the age in whole days a purged file must exceed.
	PurgeMaxAgeDays int

	// Attempts is how many times Run tries a failing cycle.
	Attempts int

	// Backoff is the pause between attempts.
	Backoff time.Duration
}

// DefaultAttempts is used when Options.Attempts is not positive.
const DefaultAttempts = 3

// ErrOutputIsSource is returned when a rendered file would replace its own input.
var ErrOutputIsSource = errors.New("output path is the source file")

// Deps are the collaborators of a Processor. History and Metrics are optional.
type Deps struct {
	Scanner   Discoverer
	Ledger    ledger.Tracker
	Retention Archiver
	History   *history.History
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
}

// Processor runs cycles. It is not safe for concurrent use; callers such
// as the scheduler serialize cycles.
type Processor struct {
	deps   Deps
	opts   Options
	logger *logging.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// New validates opts and returns a Processor.
func New(deps Deps, opts Options) (*Processor, error) {
	if deps.Scanner == nil || deps.Ledger == nil || deps.Retention == nil {
		return nil, errors.New("scanner, ledger and retention manager are required")
	}
	if opts.Root == "" {
		return nil, errors.New("scan root is required")
	}
	if opts.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if samePath(opts.OutputDir, opts.Root) {
		return nil, fmt.Errorf("output directory %s must differ from scan root", opts.OutputDir)
	}
	if len(opts.InputColumns) == 0 {
		return nil, errors.New("input columns are required")
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &Processor{
		deps:   deps,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}, nil
}

// Run executes a cycle, retrying the whole cycle up to Attempts times.
// Every failed attempt is logged with a stack trace. Cancelling ctx stops
// further attempts.
func (p *Processor) Run(ctx context.Context) (*history.Entry, error) {
	var lastErr error
	for attempt := 1; attempt <= p.opts.Attempts; attempt++ {
		entry, err := p.runCycle(ctx, attempt)
		if err == nil {
			p.logger.Info("data processing completed",
				"cycle", entry.ID,
				"attempt", attempt,
				"processed", len(entry.Processed),
			)
			return entry, nil
		}

		lastErr = err
		p.logger.Failure("data processing failed", err, "cycle", entry.ID, "attempt", attempt)

		if ctx.Err() != nil {
			return entry, ctx.Err()
		}
		if attempt < p.opts.Attempts {
			if err := p.sleep(ctx, p.opts.Backoff); err != nil {
				return entry, err
			}
		}
	}
	return nil, fmt.Errorf("cycle failed after %d attempts: %w", p.opts.Attempts, lastErr)
}

// RunCycle executes a single cycle without retrying.
func (p *Processor) RunCycle(ctx context.Context) (*history.Entry, error) {
	return p.runCycle(ctx, 1)
}

func (p *Processor) runCycle(ctx context.Context, attempt int) (*history.Entry, error) {
	start := p.now()
	entry := history.NewEntry(start)
	entry.Attempts = attempt

	err := p.cycle(ctx, entry)

	entry.FinishedAt = p.now()
	if err != nil {
		entry.Error = err.Error()
	}
	p.deps.Metrics.CycleFinished(entry.FinishedAt.Sub(start), err)

	if p.deps.History != nil {
		if logErr := p.deps.History.Log(entry); logErr != nil {
			p.logger.Warn("failed to write cycle history", "cycle", entry.ID, "error", logErr)
		}
	} else {
		entry.Summarize()
	}
	return entry, err
}

func (p *Processor) cycle(ctx context.Context, entry *history.Entry) error {
	files, err := p.deps.Scanner.DiscoverNew(ctx, p.opts.Root)
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}
	entry.Discovered = files
	p.deps.Metrics.FilesDiscovered(len(files))

	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := p.processFile(src)
		if err != nil {
			return fmt.Errorf("processing %s: %w", src, err)
		}
		entry.Processed = append(entry.Processed, rec)
	}

	if p.opts.PurgeDir != "" {
		purged, err := p.deps.Retention.PurgeExpired(p.opts.PurgeDir, p.opts.PurgeMaxAgeDays)
		entry.Purged = purged
		p.deps.Metrics.FilesPurged(len(purged))
		if err != nil {
			return fmt.Errorf("purging %s: %w", p.opts.PurgeDir, err)
		}
	}
	return nil
}

// processFile parses src, writes the output file and marks src as
// processed. Once the output exists the ledger is updated before any
// archive step so a failed move never causes the file to be reprocessed.
func (p *Processor) processFile(src string) (history.FileRecord, error) {
	rec := history.FileRecord{Source: src}

	info, err := os.Stat(src)
	if err != nil {
		return rec, fmt.Errorf("stat source: %w", err)
	}
	rec.Size = info.Size()

	table, stats, err := record.ReadFile(src, p.opts.InputColumns)
	if err != nil {
		return rec, err
	}
	rec.Rows = len(table.Rows)
	rec.Skipped = stats.Skipped
	if stats.Skipped > 0 {
		p.logger.Debug("skipped malformed lines", "file", src, "skipped", stats.Skipped, "lines", stats.Lines)
	}

	out := filepath.Join(p.opts.OutputDir, filepath.Base(src))
	if samePath(out, src) {
		return rec, fmt.Errorf("%w: %s", ErrOutputIsSource, src)
	}
	if err := table.WriteFile(out, p.opts.OutputColumns); err != nil {
		return rec, fmt.Errorf("writing output: %w", err)
	}
	rec.Output = out

	p.deps.Ledger.Record(src)
	if err := p.deps.Ledger.Evict(); err != nil {
		return rec, fmt.Errorf("saving ledger: %w", err)
	}
	p.deps.Metrics.FileProcessed(stats.Skipped)

	if p.opts.ArchiveDir != "" {
		dst, err := p.deps.Retention.MoveAndMark(src, p.opts.ArchiveDir)
		if err != nil {
			return rec, fmt.Errorf("archiving: %w", err)
		}
		rec.Archived = dst
		p.deps.Metrics.FileMoved()
	}

	p.logger.Info("file processed", "src", src, "out", out, "rows", rec.Rows, "skipped", rec.Skipped)
	return rec, nil
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

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
