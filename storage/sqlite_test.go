package storage

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestResumePage_RoundTrip(t *testing.T) {
	store := openTestStore(t)

	seed, page, err := store.GetResumePage("remax_pt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if seed != 0 || page != 0 {
		t.Fatalf("fresh site must have no resume point, got seed %d page %d", seed, page)
	}

	if err := store.SetResumePage("remax_pt", 2, 17); err != nil {
		t.Fatalf("set: %v", err)
	}
	seed, page, err = store.GetResumePage("remax_pt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if seed != 2 || page != 17 {
		t.Fatalf("expected seed 2 page 17, got seed %d page %d", seed, page)
	}

	// Overwrite keeps the latest point
	if err := store.SetResumePage("remax_pt", 0, 3); err != nil {
		t.Fatalf("set: %v", err)
	}
	seed, page, _ = store.GetResumePage("remax_pt")
	if seed != 0 || page != 3 {
		t.Fatalf("expected seed 0 page 3 after overwrite, got seed %d page %d", seed, page)
	}

	sites, err := store.GetSitesWithResumePage()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sites) != 1 || sites[0] != "remax_pt" {
		t.Fatalf("expected [remax_pt], got %v", sites)
	}

	if err := store.ClearResumePage("remax_pt"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	seed, page, _ = store.GetResumePage("remax_pt")
	if seed != 0 || page != 0 {
		t.Fatalf("expected cleared resume point, got seed %d page %d", seed, page)
	}
	if sites, _ := store.GetSitesWithResumePage(); len(sites) != 0 {
		t.Fatalf("cleared site must not be listed, got %v", sites)
	}
}
