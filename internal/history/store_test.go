package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	entries := []Entry{
		{Account: "work", Channel: "ntfy", Title: "@work has new mail", Message: "one", Status: StatusSent, CreatedAt: base},
		{Account: "work", Channel: "telegram", Title: "@work has new mail", Message: "one", Status: StatusFailed, Error: "timeout", CreatedAt: base.Add(time.Second)},
		{Account: "home", Channel: "ntfy", Title: "@home has new mail", Message: "two", Status: StatusSent, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Account != "home" || got[2].Channel != "ntfy" || got[2].Account != "work" {
		t.Errorf("entries not newest first: %+v", got)
	}
	if got[1].Error != "timeout" || got[1].Status != StatusFailed {
		t.Errorf("failed entry lost its error: %+v", got[1])
	}
	if got[0].Error != "" {
		t.Errorf("expected empty error, got %q", got[0].Error)
	}
	if !got[0].CreatedAt.Equal(entries[2].CreatedAt.Truncate(time.Millisecond)) {
		t.Errorf("CreatedAt = %v, want %v", got[0].CreatedAt, entries[2].CreatedAt)
	}

	limited, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].Account != "home" {
		t.Errorf("Recent(1) = %+v", limited)
	}
}

func TestRecentEmpty(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestRecordDefaultsTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	if err := store.Record(ctx, Entry{Account: "a", Channel: "ntfy", Title: "t", Message: "m", Status: StatusSent}); err != nil {
		t.Fatal(err)
	}
	got, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].CreatedAt.Before(before) {
		t.Errorf("CreatedAt not defaulted to now: %v", got[0].CreatedAt)
	}
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Record(context.Background(), Entry{Account: "a", Channel: "ntfy", Title: "t", Message: "m", Status: StatusSent}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	store, err = NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	got, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("expected entry to survive reopen, got %d", len(got))
	}
}
