package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/filer/pkg/filer/history"
	"github.com/jamesainslie/filer/pkg/filer/ledger"
	"github.com/jamesainslie/filer/pkg/filer/metrics"
	"github.com/jamesainslie/filer/pkg/filer/retention"
	"github.com/jamesainslie/filer/pkg/filer/scanner"
)

type fixture struct {
	root    string
	out     string
	ledger  *ledger.Ledger
	metrics *metrics.Metrics
	history *history.History
	proc    *Processor
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()

	base, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		root: filepath.Join(base, "data"),
		out:  filepath.Join(base, "out"),
	}
	require.NoError(t, os.MkdirAll(f.root, 0o755))

	store, err := ledger.NewJSONStore(filepath.Join(base, ledger.DefaultDir, ledger.DefaultFile))
	require.NoError(t, err)
	f.metrics = metrics.New(nil)
	f.ledger, err = ledger.New(store, 30, ledger.WithObserver(f.metrics))
	require.NoError(t, err)

	sc, err := scanner.New(f.ledger, scanner.Options{FreshnessDays: 3}, nil)
	require.NoError(t, err)
	rm, err := retention.New(f.ledger, nil)
	require.NoError(t, err)
	f.history, err = history.New(filepath.Join(base, "history"))
	require.NoError(t, err)

	opts := Options{
		Root:          f.root,
		OutputDir:     f.out,
		InputColumns:  []string{"id", "name", "amount"},
		OutputColumns: []string{"name", "amount"},
	}
	if mutate != nil {
		mutate(&opts)
	}

	f.proc, err = New(Deps{
		Scanner:   sc,
		Ledger:    f.ledger,
		Retention: rm,
		History:   f.history,
		Metrics:   f.metrics,
	}, opts)
	require.NoError(t, err)
	return f
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	deps := f.proc.deps

	_, err := New(Deps{}, f.proc.opts)
	assert.Error(t, err)

	opts := f.proc.opts
	opts.OutputDir = ""
	_, err = New(deps, opts)
	assert.Error(t, err)

	opts = f.proc.opts
	opts.InputColumns = nil
	_, err = New(deps, opts)
	assert.Error(t, err)

	opts = f.proc.opts
	opts.Root = ""
	_, err = New(deps, opts)
	assert.Error(t, err)

	opts = f.proc.opts
	opts.OutputDir = opts.Root + string(filepath.Separator) + "."
	_, err = New(deps, opts)
	assert.Error(t, err, "output directory equal to the scan root")

	assert.Equal(t, DefaultAttempts, f.proc.opts.Attempts)
}

func TestRunCycle_ProcessesAndMarks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	a := f.write(t, "a.txt", "1|alice|10\nbroken line\n2|bob|20\n")
	f.write(t, "b.log", "1|x|1\n")

	entry, err := f.proc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{a}, entry.Discovered)
	require.Len(t, entry.Processed, 1)
	assert.Equal(t, 2, entry.Processed[0].Rows)
	assert.Equal(t, 1, entry.Processed[0].Skipped)
	assert.Equal(t, 1, entry.Summary.SkippedLines)

	content, err := os.ReadFile(filepath.Join(f.out, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "name|amount\nalice|10\nbob|20\n", string(content))

	assert.True(t, f.ledger.Seen(a))

	// Processed files are never rediscovered.
	entry, err = f.proc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entry.Discovered)
	assert.Empty(t, entry.Processed)

	expected := `
# HELP filer_records_skipped_total Total number of input lines skipped for a wrong field count
# TYPE filer_records_skipped_total counter
filer_records_skipped_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected), "filer_records_skipped_total"))

	entries, err := f.history.List(0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunCycle_ArchivesSources(t *testing.T) {
	t.Parallel()

	var archive string
	f := newFixture(t, func(o *Options) {
		archive = filepath.Join(filepath.Dir(o.Root), "archive")
		o.ArchiveDir = archive
	})
	a := f.write(t, "sub/a.txt", "1|alice|10\n")

	entry, err := f.proc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, entry.Processed, 1)

	assert.Equal(t, filepath.Join(archive, "a.txt"), entry.Processed[0].Archived)
	assert.NoFileExists(t, a)
	assert.FileExists(t, filepath.Join(archive, "a.txt"))
	assert.True(t, f.ledger.Seen(a))
	assert.Equal(t, 1, entry.Summary.Archived)
}

func TestRunCycle_PurgesExpiredOutput(t *testing.T) {
	t.Parallel()

	var purgeDir string
	f := newFixture(t, func(o *Options) {
		purgeDir = o.OutputDir
		o.PurgeDir = o.OutputDir
		o.PurgeMaxAgeDays = 7
	})
	require.NoError(t, os.MkdirAll(purgeDir, 0o755))
	old := filepath.Join(purgeDir, "old.txt")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	past := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	f.write(t, "fresh.txt", "1|alice|10\n")

	entry, err := f.proc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{old}, entry.Purged)
	assert.NoFileExists(t, old)
	assert.FileExists(t, filepath.Join(purgeDir, "fresh.txt"))
}

func TestRunCycle_UnknownOutputColumnFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(o *Options) {
		o.OutputColumns = []string{"missing"}
	})
	a := f.write(t, "a.txt", "1|alice|10\n")

	entry, err := f.proc.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, entry.Failed())
	assert.False(t, f.ledger.Seen(a), "failed files stay eligible")
}

func TestRunCycle_NeverOverwritesSource(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(o *Options) {
		o.OutputDir = filepath.Join(o.Root, "out")
	})
	const raw = "1|alice|10\n2|bob|20\n"
	src := f.write(t, "out/a.txt", raw)

	entry, err := f.proc.RunCycle(context.Background())
	require.ErrorIs(t, err, ErrOutputIsSource)
	assert.True(t, entry.Failed())

	content, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, raw, string(content), "input must be left intact")
	assert.False(t, f.ledger.Seen(src))
}

type flakyDiscoverer struct {
	failures int
	calls    int
}

func (d *flakyDiscoverer) DiscoverNew(context.Context, string) ([]string, error) {
	d.calls++
	if d.calls <= d.failures {
		return nil, errors.New("disk not mounted")
	}
	return nil, nil
}

func newRetryProcessor(t *testing.T, d Discoverer, attempts int) (*Processor, *[]time.Duration) {
	t.Helper()
	f := newFixture(t, nil)
	deps := f.proc.deps
	deps.Scanner = d
	opts := f.proc.opts
	opts.Attempts = attempts
	opts.Backoff = time.Minute

	p, err := New(deps, opts)
	require.NoError(t, err)

	var sleeps []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return p, &sleeps
}

func TestRun_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	d := &flakyDiscoverer{failures: 2}
	p, sleeps := newRetryProcessor(t, d, 3)

	entry, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, d.calls)
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, *sleeps)
}

func TestRun_StopsAfterAttempts(t *testing.T) {
	t.Parallel()

	d := &flakyDiscoverer{failures: 10}
	p, sleeps := newRetryProcessor(t, d, 3)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "after 3 attempts")
	assert.ErrorContains(t, err, "disk not mounted")
	assert.Equal(t, 3, d.calls)
	assert.Len(t, *sleeps, 2)
}

func TestRun_CancelledContextStopsRetrying(t *testing.T) {
	t.Parallel()

	d := &flakyDiscoverer{failures: 10}
	p, _ := newRetryProcessor(t, d, 5)

	ctx, cancel := context.WithCancel(context.Background())
	p.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, d.calls)
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
