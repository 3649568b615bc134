package scanner

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MatchFunc reports whether a file base name is a processing candidate.
type MatchFunc func(name string) bool

// Match mode names accepted by ParseMatch.
const (
	MatchLoose = "loose"
	MatchExact = "exact"
)

// LooseSuffix accepts names ending in ".txt" or in "out". The second test
// has no dot, so "about" and "layout" match as well as "run.out".
func LooseSuffix(name string) bool {
	return strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, "out")
}

// ExactExtension accepts only the ".txt" and ".out" extensions.
func ExactExtension(name string) bool {
	switch filepath.Ext(name) {
	case ".txt", ".out":
		return true
	}
	return false
}

// ParseMatch returns the MatchFunc for a mode name. An empty name selects
// the loose matcher.
func ParseMatch(mode string) (MatchFunc, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case MatchLoose, "":
		return LooseSuffix, nil
	case MatchExact:
		return ExactExtension, nil
	default:
		return nil, fmt.Errorf("unknown match mode %q (want %s or %s)", mode, MatchLoose, MatchExact)
	}
}

// Options configures a Scanner.
type Options struct {
	// Match selects candidate files by base name. Nil uses LooseSuffix.
	Match MatchFunc

	// FreshnessDays is the exclusive upper bound on a new file's age in whole days.
	FreshnessDays int

	// Exclude holds glob patterns for paths to skip. A pattern is tried
	// against both the base name and the full path.
	Exclude []string

	// Clock returns the current time. Nil uses time.Now.
	Clock func() time.Time
}

// DefaultFreshnessDays is the freshness window used when none is configured.
const DefaultFreshnessDays = 3

// DefaultOptions returns loose matching with the default freshness window.
func DefaultOptions() Options {
	return Options{
		Match:         LooseSuffix,
		FreshnessDays: DefaultFreshnessDays,
	}
}

// Validate fills unset fields with defaults and rejects negative windows.
func (o *Options) Validate() error {
	if o.Match == nil {
		o.Match = LooseSuffix
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.FreshnessDays < 0 {
		return fmt.Errorf("freshness days cannot be negative: %d", o.FreshnessDays)
	}
	return nil
}
