// Package ledger records which files have already been processed.
//
// A Ledger maps a file path to the instant it was last recorded. It is
// loaded from a Store when constructed and written back to the Store each
// time Evict runs, after entries older than the retention window have been
// dropped. Recording alone never touches the Store.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/filer/pkg/filer/logging"
)

// Tracker is the contract the scanner and retention manager depend on.
type Tracker interface {
	// Record marks key as seen now.
	Record(key string)
	// RecordAt marks key as seen at the given instant.
	RecordAt(key string, at time.Time)
	// Evict drops expired entries and persists the remainder.
	Evict() error
	// Seen reports whether key is present.
	Seen(key string) bool
	// Keys returns every recorded key.
	Keys() []string
}

// Observer receives ledger statistics after each eviction.
type Observer interface {
	LedgerEvicted(n int)
	LedgerSize(n int)
}

// Entry is a single ledger record.
type Entry struct {
	Path string    `json:"path" yaml:"path"`
	Seen time.Time `json:"seen" yaml:"seen"`
}

// Ledger is the in-memory processed-file set backed by a Store.
type Ledger struct {
	mu            sync.Mutex
	store         Store
	retentionDays int
	entries       map[string]time.Time
	now           func() time.Time
	logger        *logging.Logger
	observer      Observer
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithObserver registers an observer for eviction statistics.
func WithObserver(o Observer) Option {
	return func(l *Ledger) {
		l.observer = o
	}
}

// New loads a Ledger from store. A store with no data yields an empty
// ledger; a store holding malformed data is an error, never a partial load.
func New(store Store, retentionDays int, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store cannot be nil")
	}
	if retentionDays < 0 {
		return nil, fmt.Errorf("retention days cannot be negative: %d", retentionDays)
	}

	l := &Ledger{
		store:         store,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	entries, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}
	if entries == nil {
		entries = make(map[string]time.Time)
	}
	l.entries = entries

	l.logger.Debug("ledger loaded", "entries", len(entries), "retention_days", retentionDays)
	return l, nil
}

// Record marks key as seen at the current time.
func (l *Ledger) Record(key string) {
	l.RecordAt(key, l.now())
}

// RecordAt marks key as seen at the given instant. Instants are kept at
// whole-second precision, the precision of the stored form.
func (l *Ledger) RecordAt(key string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = normalize(at)
}

// Evict removes every entry recorded before now minus the retention window
// and then writes the remaining entries to the store, replacing its content.
func (l *Ledger) Evict() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := normalize(l.now().Add(-time.Duration(l.retentionDays) * 24 * time.Hour))

	removed := 0
	for key, seen := range l.entries {
		if seen.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}

	snapshot := make(map[string]time.Time, len(l.entries))
	for k, v := range l.entries {
		snapshot[k] = v
	}
	if err := l.store.Save(snapshot); err != nil {
		return fmt.Errorf("persisting ledger: %w", err)
	}

	if l.observer != nil {
		l.observer.LedgerEvicted(removed)
		l.observer.LedgerSize(len(snapshot))
	}
	if removed > 0 {
		l.logger.Info("evicted expired ledger entries", "removed", removed, "remaining", len(snapshot))
	}
	return nil
}

// Seen reports whether key has been recorded.
func (l *Ledger) Seen(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[key]
	return ok
}

// Lookup returns the instant key was recorded.
func (l *Ledger) Lookup(key string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.entries[key]
	return t, ok
}

// Keys returns all recorded keys in no particular order.
func (l *Ledger) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	return keys
}

// Entries returns a snapshot of the ledger sorted by path.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	for k, v := range l.entries {
		out = append(out, Entry{Path: k, Seen: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// RetentionDays returns the configured retention window.
func (l *Ledger) RetentionDays() int {
	return l.retentionDays
}

// Close releases the underlying store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

var _ Tracker = (*Ledger)(nil)
