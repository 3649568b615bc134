package retention

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/filer/pkg/filer/logging"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.Local)

// fakeTracker records calls in order.
type fakeTracker struct {
	recorded []string
	evicts   int
	evictErr error
	calls    []string
}

func (f *fakeTracker) Record(key string) {
	f.recorded = append(f.recorded, key)
	f.calls = append(f.calls, "record")
}

func (f *fakeTracker) RecordAt(key string, _ time.Time) { f.Record(key) }

func (f *fakeTracker) Evict() error {
	f.evicts++
	f.calls = append(f.calls, "evict")
	return f.evictErr
}

func (f *fakeTracker) Seen(key string) bool {
	for _, k := range f.recorded {
		if k == key {
			return true
		}
	}
	return false
}

func (f *fakeTracker) Keys() []string { return f.recorded }

func newManager(t *testing.T, tr *fakeTracker) (*Manager, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	m, err := New(tr, logging.NewWriter(&buf, logging.LevelDebug, "retention"), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return m, &buf
}

func writeAged(t *testing.T, path, content string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	mtime := now.Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestNew_NilTracker(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestPurgeExpired_AgeBoundaries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	const maxAge = 30
	day := 24 * time.Hour

	writeAged(t, filepath.Join(dir, "younger.txt"), "x", (maxAge-1)*day+time.Hour)
	writeAged(t, filepath.Join(dir, "equal.txt"), "x", maxAge*day+time.Hour)
	writeAged(t, filepath.Join(dir, "older.txt"), "x", (maxAge+1)*day+time.Hour)
	writeAged(t, filepath.Join(dir, "older.log"), "x", (maxAge+5)*day)
	writeAged(t, filepath.Join(dir, "nested", "deep.txt"), "x", (maxAge+5)*day)

	m, logs := newManager(t, &fakeTracker{})
	removed, err := m.PurgeExpired(dir, maxAge)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "older.txt")}, removed)
	assert.NoFileExists(t, filepath.Join(dir, "older.txt"))
	assert.FileExists(t, filepath.Join(dir, "younger.txt"))
	assert.FileExists(t, filepath.Join(dir, "equal.txt"))
	assert.FileExists(t, filepath.Join(dir, "older.log"))
	assert.FileExists(t, filepath.Join(dir, "nested", "deep.txt"))

	assert.Contains(t, logs.String(), "older.txt had removed")
	assert.NotContains(t, logs.String(), "no file removed")
}

func TestPurgeExpired_NothingToRemove(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeAged(t, filepath.Join(dir, "fresh.txt"), "x", time.Hour)

	m, logs := newManager(t, &fakeTracker{})
	removed, err := m.PurgeExpired(dir, 30)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, 1, strings.Count(logs.String(), "no file removed"))
}

func TestPurgeExpired_SeveralFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeAged(t, filepath.Join(dir, "a.txt"), "x", 10*24*time.Hour)
	writeAged(t, filepath.Join(dir, "b.txt"), "x", 10*24*time.Hour)

	m, _ := newManager(t, &fakeTracker{})
	removed, err := m.PurgeExpired(dir, 0)
	require.NoError(t, err)

	sort.Strings(removed)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}, removed)
}

func TestPurgeExpired_Symlinks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	targets := t.TempDir()
	old := filepath.Join(targets, "old.data")
	young := filepath.Join(targets, "young.data")
	writeAged(t, old, "x", 40*24*time.Hour)
	writeAged(t, young, "x", time.Hour)

	require.NoError(t, os.Symlink(old, filepath.Join(dir, "old.txt")))
	require.NoError(t, os.Symlink(young, filepath.Join(dir, "young.txt")))
	require.NoError(t, os.Symlink(filepath.Join(targets, "gone"), filepath.Join(dir, "dangling.txt")))

	m, _ := newManager(t, &fakeTracker{})
	removed, err := m.PurgeExpired(dir, 30)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "old.txt")}, removed)
	_, err = os.Lstat(filepath.Join(dir, "old.txt"))
	assert.True(t, os.IsNotExist(err), "expired link removed")
	assert.FileExists(t, old, "link target is untouched")
	assert.FileExists(t, filepath.Join(dir, "young.txt"))
	_, err = os.Lstat(filepath.Join(dir, "dangling.txt"))
	assert.NoError(t, err, "dangling link left in place")
}

func TestPurgeExpired_MissingDir(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, &fakeTracker{})
	_, err := m.PurgeExpired(filepath.Join(t.TempDir(), "missing"), 1)
	assert.Error(t, err)
}

func TestMoveAndMark_CreatesDirAndRecords(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	src := filepath.Join(root, "data", "x.txt")
	writeAged(t, src, "payload", 0)
	archive := filepath.Join(root, "archive")

	tr := &fakeTracker{}
	m, _ := newManager(t, tr)
	dst, err := m.MoveAndMark(src, archive)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(archive, "x.txt"), dst)
	assert.NoFileExists(t, src)
	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))

	assert.Equal(t, []string{src}, tr.recorded)
	assert.Equal(t, []string{"record", "evict"}, tr.calls)
}

func TestMoveAndMark_DestinationExists(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	src := filepath.Join(root, "x.txt")
	writeAged(t, src, "new", 0)
	archive := filepath.Join(root, "archive")
	writeAged(t, filepath.Join(archive, "x.txt"), "old", 0)

	tr := &fakeTracker{}
	m, _ := newManager(t, tr)
	_, err := m.MoveAndMark(src, archive)
	assert.ErrorIs(t, err, ErrDestinationExists)
	assert.FileExists(t, src)
	assert.Empty(t, tr.recorded)
	assert.Zero(t, tr.evicts)
}

func TestMoveAndMark_MissingSourceDoesNotRecord(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	tr := &fakeTracker{}
	m, _ := newManager(t, tr)
	_, err := m.MoveAndMark(filepath.Join(root, "missing.txt"), filepath.Join(root, "archive"))
	assert.Error(t, err)
	assert.Empty(t, tr.recorded)
}

func TestMoveAndMark_EvictErrorReturnsDestination(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	src := filepath.Join(root, "x.txt")
	writeAged(t, src, "x", 0)

	tr := &fakeTracker{evictErr: errors.New("read-only")}
	m, _ := newManager(t, tr)
	dst, err := m.MoveAndMark(src, filepath.Join(root, "archive"))
	assert.ErrorContains(t, err, "read-only")
	assert.FileExists(t, dst)
}

func TestCompareFiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		a, b    string
		want    bool
		wantErr error
	}{
		{name: "complete marker", a: "abc\nxy#", b: "abc\nzz#", want: true},
		{name: "marker then newline", a: "abc#\n", b: "abc#\n", want: false},
		{name: "no marker", a: "abc", b: "abd", want: false},
		{name: "single line marker", a: "#", b: "#", want: true},
		{name: "sizes differ", a: "abc#", b: "ab#", want: false},
		{name: "sizes differ with empty b", a: "abc", b: "", want: false},
		{name: "both empty", a: "", b: "", wantErr: ErrEmptyFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			a := filepath.Join(dir, "a")
			b := filepath.Join(dir, "b")
			require.NoError(t, os.WriteFile(a, []byte(tt.a), 0o644))
			require.NoError(t, os.WriteFile(b, []byte(tt.b), 0o644))

			m, _ := newManager(t, &fakeTracker{})
			got, err := m.CompareFiles(a, b)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompareFiles_MissingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(a, []byte("x#"), 0o644))

	m, _ := newManager(t, &fakeTracker{})
	_, err := m.CompareFiles(a, filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
