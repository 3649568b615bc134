// Package output renders file listings produced by filer commands in
// several formats (pretty, table, plain, json, yaml, paths).
//
// Formatters are looked up by name in a registry:
//
//	formatter, err := output.Get("table")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, result); err != nil {
//	    return err
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// FileInfo describes one listed file.
type FileInfo struct {
	// Path is the absolute path to the file.
	Path string `json:"path" yaml:"path"`

	// Name is the base name of the file.
	Name string `json:"name" yaml:"name"`

	// Size is the file size in bytes.
	Size int64 `json:"size" yaml:"size"`

	// SizeHuman is the human-readable size (e.g., "1.5 MB").
	SizeHuman string `json:"size_human" yaml:"size_human"`

	// ModTime is the last modification time.
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`

	// AgeDays is the age in whole days at the time the listing was built.
	AgeDays int `json:"age_days" yaml:"age_days"`

	// Seen is when the ledger recorded the file. Zero if not recorded.
	Seen time.Time `json:"seen,omitzero" yaml:"seen,omitempty"`

	// Note is a short free-form status such as "archived".
	Note string `json:"note,omitempty" yaml:"note,omitempty"`
}

// Column names accepted in Result.Columns.
const (
	ColumnSize     = "size"
	ColumnAge      = "age"
	ColumnModified = "modified"
	ColumnSeen     = "seen"
	ColumnNote     = "note"
	ColumnPath     = "path"
)

// DefaultColumns is used when Result.Columns is empty.
var DefaultColumns = []string{ColumnSize, ColumnAge, ColumnPath}

// Result is the data handed to a formatter.
type Result struct {
	// Title names the listing, e.g. "New files".
	Title string `json:"title" yaml:"title"`

	// Source is the directory or ledger the listing came from.
	Source string `json:"source" yaml:"source"`

	// Files are the listed files in display order.
	Files []FileInfo `json:"files" yaml:"files"`

	// Columns selects the tabular columns. Empty uses DefaultColumns.
	Columns []string `json:"-" yaml:"-"`

	// Warnings are shown after the listing.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// TotalSize returns the sum of all file sizes in the result.
func (r *Result) TotalSize() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}

// NewFileInfo builds a FileInfo from a stat result. ageDays is computed by
// the caller so that every command uses the same whole-day rule.
func NewFileInfo(path string, info os.FileInfo, ageDays int) FileInfo {
	return FileInfo{
		Path:      path,
		Name:      filepath.Base(path),
		Size:      info.Size(),
		SizeHuman: humanize.Bytes(uint64(info.Size())),
		ModTime:   info.ModTime(),
		AgeDays:   ageDays,
	}
}

// Formatter is the interface that all output formatters implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory, replacing any with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
