package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countBackups(t *testing.T, dir, prefix string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		name := e.Name()
		if name != prefix+".log" && strings.HasPrefix(name, prefix+".") && strings.HasSuffix(name, ".log") {
			n++
		}
	}
	return n
}

func TestRotatingWriter_RotatesBySize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewRotatingWriter(filepath.Join(dir, "app.log"), RotationConfig{MaxSize: 256})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := w.Write([]byte(strings.Repeat("x", 50) + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	assert.GreaterOrEqual(t, countBackups(t, dir, "app"), 1)
	_, err = os.Stat(filepath.Join(dir, "app.log"))
	assert.NoError(t, err)
}

func TestRotatingWriter_MaxBackups(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewRotatingWriter(filepath.Join(dir, "app.log"), RotationConfig{MaxSize: 64, MaxBackups: 2})
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		_, err := w.Write([]byte(strings.Repeat("y", 40) + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	assert.LessOrEqual(t, countBackups(t, dir, "app"), 2)
}

func TestRotatingWriter_RotatesAtMidnight(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	w, err := NewRotatingWriter(path, RotationConfig{Daily: true})
	require.NoError(t, err)

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.Local)
	w.now = func() time.Time { return day1 }
	w.opened = day1

	_, err = w.Write([]byte("before midnight\n"))
	require.NoError(t, err)

	w.now = func() time.Time { return day1.Add(2 * time.Minute) }
	_, err = w.Write([]byte("after midnight\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rotated, err := os.ReadFile(filepath.Join(dir, "app.2026-03-01.log"))
	require.NoError(t, err)
	assert.Contains(t, string(rotated), "before midnight")

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after midnight\n", string(current))
}

func TestRotatingWriter_PrunesByAge(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	old := filepath.Join(dir, "app.2020-01-01.log")
	recent := filepath.Join(dir, "app.2026-01-01.log")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(recent, []byte("recent"), 0o644))
	oldTime := time.Now().AddDate(0, 0, -90)
	require.NoError(t, os.Chtimes(old, oldTime, oldTime))

	w, err := NewRotatingWriter(filepath.Join(dir, "app.log"), RotationConfig{MaxAge: 60})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(recent)
	assert.NoError(t, err)
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	t.Parallel()

	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "app.log"), RotationConfig{})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestParseMaxSize(t *testing.T) {
	t.Parallel()

	n, err := ParseMaxSize("10MB")
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), n)

	n, err = ParseMaxSize("")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = ParseMaxSize("lots")
	assert.Error(t, err)
}
