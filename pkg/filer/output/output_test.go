package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleResult() *Result {
	return &Result{
		Title:  "New files",
		Source: "/data",
		Files: []FileInfo{
			{Path: "/data/a.txt", Name: "a.txt", Size: 1500, SizeHuman: "1.5 kB", AgeDays: 1},
			{Path: "/data/sub/run.out", Name: "run.out", Size: 2000000, SizeHuman: "2.0 MB", AgeDays: 0},
		},
	}
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"json", "paths", "plain", "pretty", "table", "yaml"}, Available())

	f, err := Get("table")
	require.NoError(t, err)
	assert.IsType(t, &TableFormatter{}, f)

	_, err = Get("xml")
	assert.Error(t, err)

	r := NewRegistry()
	r.Register("paths", func() Formatter { return &PathsFormatter{} })
	assert.Equal(t, []string{"paths"}, r.Available())
}

func TestNewFileInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	fi := NewFileInfo(path, info, 4)
	assert.Equal(t, "a.txt", fi.Name)
	assert.Equal(t, int64(5), fi.Size)
	assert.Equal(t, "5 B", fi.SizeHuman)
	assert.Equal(t, 4, fi.AgeDays)
}

func TestResult_TotalSize(t *testing.T) {
	assert.Equal(t, int64(2001500), sampleResult().TotalSize())
}

func TestFormatters_UnknownColumn(t *testing.T) {
	r := sampleResult()
	r.Columns = []string{"path", "owner"}

	for _, name := range []string{"pretty", "table", "plain"} {
		f, err := Get(name)
		require.NoError(t, err)
		assert.Error(t, f.Format(&bytes.Buffer{}, r), name)
	}
}

func TestPlainFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&PlainFormatter{}).Format(&buf, sampleResult()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "SIZE"))
	assert.Contains(t, lines[0], "AGE")
	assert.Contains(t, lines[0], "PATH")
	assert.Contains(t, lines[1], "1.5 kB")
	assert.Contains(t, lines[1], "1d")
	assert.Contains(t, lines[1], "/data/a.txt")
}

func TestPlainFormatter_LedgerColumns(t *testing.T) {
	seen := time.Date(2026, 10, 18, 9, 5, 7, 0, time.Local)
	r := &Result{
		Source:  "/work/hisFile/filter.json",
		Columns: []string{ColumnSeen, ColumnPath},
		Files:   []FileInfo{{Path: "/data/a.txt", Seen: seen}},
	}

	var buf bytes.Buffer
	require.NoError(t, (&PlainFormatter{}).Format(&buf, r))
	assert.Contains(t, buf.String(), "SEEN")
	assert.Contains(t, buf.String(), "2026-10-18 09:05:07")
	assert.NotContains(t, buf.String(), "SIZE")
}

func TestPathsFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&PathsFormatter{}).Format(&buf, sampleResult()))
	assert.Equal(t, "/data/a.txt\n/data/sub/run.out\n", buf.String())
}

func TestTableFormatter(t *testing.T) {
	r := sampleResult()
	r.Warnings = []string{"skipped /data/locked"}

	var buf bytes.Buffer
	require.NoError(t, (&TableFormatter{}).Format(&buf, r))

	out := buf.String()
	assert.Contains(t, out, "New files")
	assert.Contains(t, out, "SIZE")
	assert.Contains(t, out, "/data/sub/run.out")
	assert.Contains(t, out, "╭")
	assert.Contains(t, out, "warning: skipped /data/locked")
}

func TestPrettyFormatter(t *testing.T) {
	r := sampleResult()
	r.Warnings = []string{"something odd"}

	var buf bytes.Buffer
	require.NoError(t, (&PrettyFormatter{}).Format(&buf, r))

	out := buf.String()
	assert.Contains(t, out, "New files")
	assert.Contains(t, out, "/data")
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "2.0 MB")
	assert.Contains(t, out, "Files:")
	assert.Contains(t, out, "Warnings:")
}

func TestPrettyFormatter_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&PrettyFormatter{}).Format(&buf, &Result{Source: "/data"}))
	assert.Contains(t, buf.String(), "No files")
	assert.NotContains(t, buf.String(), "Total:")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, sampleResult()))

	var doc document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "/data", doc.Meta.Source)
	assert.Equal(t, 2, doc.Meta.TotalFiles)
	assert.Equal(t, int64(2001500), doc.Meta.TotalSize)
	require.Len(t, doc.Files, 2)
	assert.Equal(t, "/data/a.txt", doc.Files[0].Path)
}

func TestJSONFormatter_EmptyFilesIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, &Result{Source: "/data"}))
	assert.Contains(t, buf.String(), `"files": []`)
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&YAMLFormatter{}).Format(&buf, sampleResult()))

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	meta, ok := doc["meta"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "/data", meta["source"])
	assert.Equal(t, 2, meta["total_files"])
}
