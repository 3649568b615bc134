package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultDir and DefaultFile give the conventional ledger location
// relative to the working directory.
const (
	DefaultDir  = "hisFile"
	DefaultFile = "filter.json"
)

// DefaultPath returns <workingDirectory>/hisFile/filter.json.
func DefaultPath() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	return filepath.Join(wd, DefaultDir, DefaultFile), nil
}

// JSONStore persists the ledger as a single indented JSON object mapping
// path to timestamp string.
type JSONStore struct {
	path string
}

// NewJSONStore returns a store for path, creating its parent directory.
func NewJSONStore(path string) (*JSONStore, error) {
	if path == "" {
		return nil, errors.New("ledger path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	return &JSONStore{path: path}, nil
}

// Path returns the ledger file path.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads the ledger file. A missing file yields an empty map.
func (s *JSONStore) Load() (map[string]time.Time, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]time.Time), nil
		}
		return nil, fmt.Errorf("reading ledger file: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s: not a JSON object", ErrCorrupt, s.path)
	}

	entries := make(map[string]time.Time, len(raw))
	for key, value := range raw {
		t, err := ParseTimestamp(value)
		if err != nil {
			return nil, fmt.Errorf("%s: key %q: %w", s.path, key, err)
		}
		entries[key] = t
	}
	return entries, nil
}

// fileMode is applied to the temp file, which CreateTemp opens owner-only.
const fileMode = 0o644

// Save writes entries to a temporary file in the same directory and renames
// it over the ledger file, so readers see either the old or the new content.
func (s *JSONStore) Save(entries map[string]time.Time) error {
	raw := make(map[string]string, len(entries))
	for key, t := range entries {
		raw[key] = FormatTimestamp(t)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(raw); err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("setting ledger permissions: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Close is a no-op; the file is only open during Load and Save.
func (s *JSONStore) Close() error {
	return nil
}

var _ Store = (*JSONStore)(nil)
