// Package retention deletes expired output files, archives processed
// sources and checks whether a copied file is complete.
package retention

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesainslie/filer/pkg/filer/fsops"
	"github.com/jamesainslie/filer/pkg/filer/ledger"
	"github.com/jamesainslie/filer/pkg/filer/logging"
	"github.com/jamesainslie/filer/pkg/filer/scanner"
)

// PurgeSuffix is the name suffix PurgeExpired considers.
const PurgeSuffix = ".txt"

// CompleteMarker is the final byte of a file that has been fully written.
const CompleteMarker = '#'

var (
	// ErrEmptyFile is returned by CompareFiles when the file to inspect has no content.
	ErrEmptyFile = errors.New("file is empty")

	// ErrDestinationExists is returned by MoveAndMark when the target name is taken.
	ErrDestinationExists = fsops.ErrDestinationExists
)

// Manager applies retention and archive operations and records moved
// files in the ledger.
type Manager struct {
	tracker ledger.Tracker
	logger  *logging.Logger
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock used for file ages.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a Manager. A nil logger discards output.
func New(tracker ledger.Tracker, logger *logging.Logger, opts ...Option) (*Manager, error) {
	if tracker == nil {
		return nil, errors.New("tracker cannot be nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	m := &Manager{tracker: tracker, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PurgeExpired deletes regular files directly inside dir whose name ends
// in ".txt" and whose age in whole days is greater than maxAgeDays. A
// symlink to a regular file is judged by its target's age and the link is
// deleted; dangling links are left alone. It does not descend into
// subdirectories. The first failed delete stops the purge; paths already
// removed are returned alongside the error.
func (m *Manager) PurgeExpired(dir string, maxAgeDays int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	now := m.now()
	var removed []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, PurgeSuffix) {
			continue
		}
		path := filepath.Join(dir, name)

		var info os.FileInfo
		switch {
		case e.Type()&fs.ModeSymlink != 0:
			// A link takes its age from the target; the link itself is removed.
			info, err = os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		case e.Type().IsRegular():
			info, err = e.Info()
			if err != nil {
				return removed, fmt.Errorf("stat %s: %w", name, err)
			}
		default:
			continue
		}
		if scanner.AgeDays(now, info.ModTime()) <= maxAgeDays {
			continue
		}

		if err := fsops.Remove(path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
		m.logger.Info(name + " had removed")
	}

	if len(removed) == 0 {
		m.logger.Info("no file removed")
	}
	return removed, nil
}

// MoveAndMark moves src into destDir, creating destDir if needed, then
// records src in the ledger and evicts expired entries, which persists the
// ledger. It returns the new path of the file. If the ledger cannot be
// saved the file has still been moved and its new path is returned with
// the error.
func (m *Manager) MoveAndMark(src, destDir string) (string, error) {
	if err := fsops.EnsureDir(destDir); err != nil {
		return "", err
	}

	dst, err := fsops.Move(src, destDir)
	if err != nil {
		return "", err
	}

	m.tracker.Record(src)
	if err := m.tracker.Evict(); err != nil {
		return dst, fmt.Errorf("marking %s: %w", src, err)
	}

	m.logger.Info("file archived", "src", src, "dst", dst)
	return dst, nil
}

// CompareFiles reports whether b is a complete copy of a. Files of
// different sizes are never equal and their content is not read.
// Otherwise b is complete when its final byte is the '#' marker; a
// trailing newline after the marker does not count as complete.
// An empty b yields ErrEmptyFile.
func (m *Manager) CompareFiles(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", a, err)
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", b, err)
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	last, err := lastByte(b)
	if err != nil {
		return false, err
	}
	return last == CompleteMarker, nil
}

func lastByte(path string) (byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}

	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, info.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return buf[0], nil
}
