package history

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func setupTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("accepts a directory", func(t *testing.T) {
		t.Parallel()
		h, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New() error = %v, want nil", err)
		}
		if h == nil {
			t.Fatal("New() returned nil")
		}
	})

	t.Run("returns error for empty directory", func(t *testing.T) {
		t.Parallel()
		if _, err := New(""); err == nil {
			t.Fatal("New() error = nil, want error for empty directory")
		}
	})
}

func TestHistory_Log(t *testing.T) {
	t.Parallel()

	t.Run("creates directory and persists entry", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "nested", "history")
		h, err := New(dir)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		entry := h.NewEntry()
		entry.Discovered = []string{"/data/a.txt", "/data/b.txt"}
		entry.Processed = []FileRecord{
			{Source: "/data/a.txt", Output: "/out/a.txt", Rows: 10, Skipped: 2, Archived: "/archive/a.txt"},
			{Source: "/data/b.txt", Output: "/out/b.txt", Rows: 3, Skipped: 1},
		}
		entry.Purged = []string{"/out/old.txt"}
		entry.FinishedAt = entry.StartedAt.Add(time.Second)

		if err := h.Log(entry); err != nil {
			t.Fatalf("Log() error = %v", err)
		}

		got, err := h.Get(entry.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		want := Summary{Discovered: 2, Processed: 2, Archived: 1, SkippedLines: 3, Purged: 1}
		if got.Summary != want {
			t.Errorf("Summary = %+v, want %+v", got.Summary, want)
		}
		if got.Duration() != time.Second {
			t.Errorf("Duration() = %v, want 1s", got.Duration())
		}
		if got.Failed() {
			t.Error("Failed() = true, want false")
		}
	})

	t.Run("rewrites an entry with the same ID", func(t *testing.T) {
		t.Parallel()
		h := setupTestHistory(t)

		entry := h.NewEntry()
		if err := h.Log(entry); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
		entry.Error = "boom"
		if err := h.Log(entry); err != nil {
			t.Fatalf("Log() error = %v", err)
		}

		entries, err := h.List(0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("len(entries) = %d, want 1", len(entries))
		}
		if !entries[0].Failed() {
			t.Error("Failed() = false, want true")
		}
	})

	t.Run("rejects entry without ID", func(t *testing.T) {
		t.Parallel()
		h := setupTestHistory(t)
		if err := h.Log(&Entry{}); err == nil {
			t.Fatal("Log() error = nil, want error")
		}
	})

	t.Run("concurrent logs produce distinct files", func(t *testing.T) {
		t.Parallel()
		h := setupTestHistory(t)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := h.Log(h.NewEntry()); err != nil {
					t.Errorf("Log() error = %v", err)
				}
			}()
		}
		wg.Wait()

		entries, err := h.List(0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(entries) != 10 {
			t.Errorf("len(entries) = %d, want 10", len(entries))
		}
	})
}

func TestHistory_List(t *testing.T) {
	t.Parallel()

	t.Run("returns entries newest first", func(t *testing.T) {
		t.Parallel()
		h := setupTestHistory(t)

		base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			e := h.NewEntry()
			e.StartedAt = base.Add(time.Duration(i) * time.Hour)
			if err := h.Log(e); err != nil {
				t.Fatalf("Log() error = %v", err)
			}
		}

		entries, err := h.List(0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		for i := 1; i < len(entries); i++ {
			if entries[i].StartedAt.After(entries[i-1].StartedAt) {
				t.Errorf("entries not sorted newest first at %d", i)
			}
		}

		limited, err := h.List(2)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(limited) != 2 {
			t.Errorf("len(List(2)) = %d, want 2", len(limited))
		}
	})

	t.Run("missing directory is empty", func(t *testing.T) {
		t.Parallel()
		h, err := New(filepath.Join(t.TempDir(), "missing"))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		entries, err := h.List(0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if entries == nil || len(entries) != 0 {
			t.Errorf("List() = %v, want empty slice", entries)
		}
	})

	t.Run("skips unreadable files", func(t *testing.T) {
		t.Parallel()
		h := setupTestHistory(t)
		if err := h.Log(h.NewEntry()); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
		if err := os.WriteFile(filepath.Join(h.Dir(), "junk.json"), []byte("{"), 0o644); err != nil {
			t.Fatal(err)
		}

		entries, err := h.List(0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(entries) != 1 {
			t.Errorf("len(entries) = %d, want 1", len(entries))
		}
	})
}

func TestHistory_Get(t *testing.T) {
	t.Parallel()

	h := setupTestHistory(t)

	if _, err := h.Get(""); err == nil {
		t.Error("Get(\"\") error = nil, want error")
	}
	if _, err := h.Get("../escape"); err == nil {
		t.Error("Get(\"../escape\") error = nil, want error")
	}
	if _, err := h.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(\"nope\") error = %v, want ErrNotFound", err)
	}
}

func TestHistory_Cleanup(t *testing.T) {
	t.Parallel()

	h := setupTestHistory(t)

	old := h.NewEntry()
	recent := h.NewEntry()
	for _, e := range []*Entry{old, recent} {
		if err := h.Log(e); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	past := time.Now().AddDate(0, 0, -40)
	if err := os.Chtimes(filepath.Join(h.Dir(), old.ID+".json"), past, past); err != nil {
		t.Fatal(err)
	}

	removed, err := h.Cleanup(30)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Cleanup() removed = %d, want 1", removed)
	}
	if _, err := h.Get(old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old entry still present: %v", err)
	}
	if _, err := h.Get(recent.ID); err != nil {
		t.Errorf("recent entry removed: %v", err)
	}
}
