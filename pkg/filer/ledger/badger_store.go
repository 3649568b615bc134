package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces ledger keys inside the badger database.
const keyPrefix = "ledger\x00"

// BadgerStore persists the ledger in a badger database directory. Values
// use the same timestamp string as the JSON file.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens or creates a badger-backed store at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	if dir == "" {
		return nil, errors.New("ledger directory cannot be empty")
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Load reads every ledger key.
func (s *BadgerStore) Load() (map[string]time.Time, error) {
	entries := make(map[string]time.Time)
	prefix := []byte(keyPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				t, err := ParseTimestamp(string(val))
				if err != nil {
					return fmt.Errorf("key %q: %w", key, err)
				}
				entries[key] = t
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Save makes the stored key set equal to entries: stale keys are deleted
// and every entry is written.
func (s *BadgerStore) Save(entries map[string]time.Time) error {
	prefix := []byte(keyPrefix)

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, ok := entries[string(key[len(prefix):])]; !ok {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning ledger keys: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("deleting ledger key: %w", err)
		}
	}
	for path, t := range entries {
		if err := wb.Set([]byte(keyPrefix+path), []byte(FormatTimestamp(t))); err != nil {
			return fmt.Errorf("writing ledger key: %w", err)
		}
	}
	return wb.Flush()
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
