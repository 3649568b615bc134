// Package schedule triggers processing cycles on a cron schedule and on
// filesystem activity. Cycles never overlap: a trigger that arrives while
// a cycle is running is dropped.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jamesainslie/filer/pkg/filer/history"
	"github.com/jamesainslie/filer/pkg/filer/logging"
)

// Job is one processing cycle with its retry policy.
type Job interface {
	Run(ctx context.Context) (*history.Entry, error)
}

// DefaultDebounce is the quiet period after the last file event before a
// watch-triggered cycle starts.
const DefaultDebounce = 2 * time.Second

// Options configures a Runner.
type Options struct {
	// Schedule is a standard five-field cron expression. Empty disables it.
	Schedule string

	// Watch enables filesystem triggers under Root.
	Watch bool

	// Root is the directory watched when Watch is set.
	Root string

	// Debounce is the quiet period for watch triggers. Zero uses DefaultDebounce.
	Debounce time.Duration

	// RunOnStart runs one cycle as soon as the runner starts.
	RunOnStart bool

	// Filter reports whether a changed file is a processing candidate.
	// Nil accepts every file.
	Filter func(path string) bool

	// Ignore lists files and directories the cycle itself writes, such as
	// the ledger, logs and output. Events on them or below them never
	// trigger a cycle.
	Ignore []string
}

// tempSuffix marks the scratch files written before an atomic rename.
const tempSuffix = ".tmp"

// Runner owns the cron scheduler and the optional watcher.
type Runner struct {
	job    Job
	opts   Options
	logger *logging.Logger

	cron    *cron.Cron
	watcher *Watcher

	running sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	started bool
}

// New validates opts and returns a Runner.
func New(job Job, opts Options, logger *logging.Logger) (*Runner, error) {
	if job == nil {
		return nil, errors.New("job cannot be nil")
	}
	if opts.Schedule == "" && !opts.Watch {
		return nil, errors.New("either a schedule or watch must be enabled")
	}
	if opts.Schedule != "" {
		if _, err := cron.ParseStandard(opts.Schedule); err != nil {
			return nil, fmt.Errorf("invalid cron schedule %q: %w", opts.Schedule, err)
		}
	}
	if opts.Watch && opts.Root == "" {
		return nil, errors.New("watch root is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	ignore, err := absIgnore(opts.Root, opts.Ignore)
	if err != nil {
		return nil, err
	}
	opts.Ignore = ignore
	if logger == nil {
		logger = logging.Nop()
	}

	return &Runner{
		job:    job,
		opts:   opts,
		logger: logger,
		cron:   cron.New(),
	}, nil
}

// Run starts the triggers and blocks until ctx is cancelled, then waits
// for a cycle in progress to finish.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	r.stop()
	return nil
}

func (r *Runner) start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return errors.New("runner already started")
	}

	if r.opts.Schedule != "" {
		if _, err := r.cron.AddFunc(r.opts.Schedule, func() { r.Trigger(ctx, "schedule") }); err != nil {
			return fmt.Errorf("failed to schedule cycles: %w", err)
		}
	}

	if r.opts.Watch {
		w, err := NewWatcher(r.logger)
		if err != nil {
			return fmt.Errorf("creating watcher: %w", err)
		}
		if err := w.Watch(r.opts.Root); err != nil {
			_ = w.Close()
			return fmt.Errorf("watching %s: %w", r.opts.Root, err)
		}
		r.watcher = w
		go w.Run(ctx, func(path string) {
			if !r.relevant(path) {
				return
			}
			r.logger.Debug("file event", "path", path)
			r.debounce(ctx)
		})
	}

	r.cron.Start()
	r.started = true

	r.logger.Info("runner started",
		"schedule", r.opts.Schedule,
		"watch", r.opts.Watch,
		"root", r.opts.Root,
	)

	if r.opts.RunOnStart {
		go r.Trigger(ctx, "start")
	}
	return nil
}

func (r *Runner) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	if r.watcher != nil {
		_ = r.watcher.Close()
	}
	<-r.cron.Stop().Done()

	// Wait for a watch- or start-triggered cycle.
	r.running.Lock()
	r.running.Unlock() //nolint:staticcheck

	r.started = false
	r.logger.Info("runner stopped")
}

// absIgnore makes every ignored path absolute. Paths that contain the
// watched root are dropped, since they would mask every event.
func absIgnore(root string, paths []string) ([]string, error) {
	var absRoot string
	if root != "" {
		var err error
		if absRoot, err = filepath.Abs(root); err != nil {
			return nil, fmt.Errorf("resolving watch root %s: %w", root, err)
		}
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving ignored path %s: %w", p, err)
		}
		if absRoot != "" && (abs == absRoot || isSubPath(absRoot, abs)) {
			continue
		}
		out = append(out, abs)
	}
	return out, nil
}

// relevant reports whether an event on path should start a cycle.
func (r *Runner) relevant(path string) bool {
	if strings.HasSuffix(path, tempSuffix) {
		return false
	}
	for _, ignored := range r.opts.Ignore {
		if path == ignored || isSubPath(path, ignored) {
			return false
		}
	}
	return r.opts.Filter == nil || r.opts.Filter(path)
}

// debounce restarts the quiet-period timer.
func (r *Runner) debounce(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.opts.Debounce, func() { r.Trigger(ctx, "watch") })
}

// Trigger runs one job unless one is already running or ctx is done. It
// reports whether the job ran.
func (r *Runner) Trigger(ctx context.Context, source string) bool {
	if ctx.Err() != nil {
		return false
	}
	if !r.running.TryLock() {
		r.logger.Debug("cycle already running, trigger skipped", "source", source)
		return false
	}
	defer r.running.Unlock()

	r.logger.Debug("cycle triggered", "source", source)
	if _, err := r.job.Run(ctx); err != nil {
		r.logger.Error("cycle failed", "source", source, "error", err)
	}
	return true
}

// NextRun returns the next scheduled cycle, or nil without a schedule.
func (r *Runner) NextRun() *time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
