// Package scanner finds files that have not been processed yet.
//
// A Scanner walks a directory tree with fastwalk, keeps regular files
// whose names pass the configured MatchFunc, removes paths the ledger has
// already seen and drops anything older than the freshness window. It
// never modifies the ledger or the filesystem.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/gobwas/glob"

	"github.com/jamesainslie/filer/pkg/filer/logging"
)

// SeenSet is the part of the ledger the scanner reads.
type SeenSet interface {
	Keys() []string
}

// Scanner discovers candidate and new files under a root directory.
type Scanner struct {
	seen    SeenSet
	opts    Options
	exclude []glob.Glob
	logger  *logging.Logger
}

// New creates a Scanner. Exclude patterns are compiled up front so a bad
// pattern is reported here rather than silently ignored during a walk.
func New(seen SeenSet, opts Options, logger *logging.Logger) (*Scanner, error) {
	if seen == nil {
		return nil, fmt.Errorf("seen set cannot be nil")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}

	s := &Scanner{seen: seen, opts: opts, logger: logger}
	for _, pattern := range opts.Exclude {
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern, filepath.Separator)
		if err != nil {
			return nil, fmt.Errorf("compiling exclude pattern %q: %w", pattern, err)
		}
		s.exclude = append(s.exclude, g)
	}
	return s, nil
}

// ListCandidates walks root recursively and returns the absolute path of
// every regular file whose base name matches. A symlink to a regular file
// is listed under the link's own path. Symlinked directories are not
// descended and dangling links are skipped. The order is the walk order,
// which is not stable.
func (s *Scanner) ListCandidates(ctx context.Context, root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absRoot)
	}

	var (
		mu         sync.Mutex
		candidates []string
	)

	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if path != absRoot && s.isExcluded(path) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}
		if !s.opts.Match(d.Name()) {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			info, err := fastwalk.StatDirEntry(path, d)
			if err != nil {
				s.logger.Debug("skipping dangling symlink", "path", path, "error", err)
				return nil
			}
			if !info.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}

		mu.Lock()
		candidates = append(candidates, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", absRoot, err)
	}

	s.logger.Debug("candidates listed", "root", absRoot, "count", len(candidates))
	return candidates, nil
}

// DiscoverNew returns candidates under root that are not in the seen set
// and are younger than FreshnessDays whole days, sorted by path. A
// candidate that disappears before it can be stat'ed is an error.
func (s *Scanner) DiscoverNew(ctx context.Context, root string) ([]string, error) {
	candidates, err := s.ListCandidates(ctx, root)
	if err != nil {
		return nil, err
	}

	keys := s.seen.Keys()
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}

	now := s.opts.Clock()
	var fresh []string
	for _, path := range candidates {
		if _, ok := seen[path]; ok {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat candidate: %w", err)
		}
		if AgeDays(now, info.ModTime()) < s.opts.FreshnessDays {
			fresh = append(fresh, path)
		}
	}
	sort.Strings(fresh)

	s.logger.Info("discovered new files",
		"root", root,
		"candidates", len(candidates),
		"new", len(fresh),
	)
	return fresh, nil
}

// Candidate reports whether the file at path passes the name match and
// no exclude pattern applies to it or to a directory above it. It does
// not touch the filesystem.
func (s *Scanner) Candidate(path string) bool {
	if !s.opts.Match(filepath.Base(path)) {
		return false
	}
	for p := path; ; {
		if s.isExcluded(p) {
			return false
		}
		parent := filepath.Dir(p)
		if parent == p {
			return true
		}
		p = parent
	}
}

// isExcluded tries each exclude pattern against the base name and the full path.
func (s *Scanner) isExcluded(path string) bool {
	base := filepath.Base(path)
	for _, g := range s.exclude {
		if g.Match(base) || g.Match(path) {
			return true
		}
	}
	return false
}

const day = 24 * time.Hour

// AgeDays returns the number of whole days between mtime and now, rounded
// toward negative infinity. A file modified in the future has a negative age.
func AgeDays(now, mtime time.Time) int {
	d := now.Sub(mtime)
	days := d / day
	if d < 0 && d%day != 0 {
		days--
	}
	return int(days)
}
