package ledger

import (
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the stored form of a ledger instant: local time,
// zero-padded, no zone.
const TimestampLayout = "2006-01-02 15:04:05"

// ErrCorrupt is returned when persisted ledger data cannot be decoded.
var ErrCorrupt = errors.New("ledger data is corrupt")

// Store is the durable backend of a Ledger.
type Store interface {
	// Load returns all persisted entries. Missing data is not an error.
	Load() (map[string]time.Time, error)
	// Save replaces the persisted entries with entries.
	Save(entries map[string]time.Time) error
	// Close releases resources held by the store.
	Close() error
}

// FormatTimestamp renders t in TimestampLayout using local time.
func FormatTimestamp(t time.Time) string {
	return t.In(time.Local).Format(TimestampLayout)
}

// ParseTimestamp parses a TimestampLayout string as local time.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrCorrupt, s)
	}
	return t, nil
}

// normalize drops sub-second precision and the monotonic reading so that
// in-memory instants compare exactly like their stored form.
func normalize(t time.Time) time.Time {
	return t.Round(0).Truncate(time.Second).In(time.Local)
}
