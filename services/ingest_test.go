package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"imovelsage/models"
)

type fakeStore struct {
	mu      sync.Mutex
	upserts []string
	failIDs map[string]bool
}

func (f *fakeStore) UpsertListing(_ context.Context, rec *models.ListingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[rec.ID] {
		return errors.New("connection refused")
	}
	f.upserts = append(f.upserts, rec.ID)
	return nil
}

func TestIngest_Counts(t *testing.T) {
	store := &fakeStore{failIDs: map[string]bool{"bad-1": true}}
	svc := NewIngestService(store)
	ctx := context.Background()

	if !svc.Ingest(ctx, &models.ListingRecord{ID: "good-1"}) {
		t.Fatal("expected successful ingest")
	}
	if svc.Ingest(ctx, &models.ListingRecord{ID: "bad-1"}) {
		t.Fatal("a failed upsert must report false")
	}
	if !svc.Ingest(ctx, &models.ListingRecord{ID: "good-2"}) {
		t.Fatal("a failure must not poison later ingests")
	}

	stored, failed := svc.Counts()
	if stored != 2 || failed != 1 {
		t.Fatalf("expected 2 stored / 1 failed, got %d / %d", stored, failed)
	}
	if len(store.upserts) != 2 {
		t.Fatalf("expected 2 upserts to reach the store, got %v", store.upserts)
	}
}

func TestIngest_Reset(t *testing.T) {
	svc := NewIngestService(&fakeStore{})
	svc.Ingest(context.Background(), &models.ListingRecord{ID: "a-1"})

	svc.Reset()
	if stored, failed := svc.Counts(); stored != 0 || failed != 0 {
		t.Fatalf("expected zeroed counters, got %d / %d", stored, failed)
	}
}

func TestIngest_ConcurrentCounters(t *testing.T) {
	svc := NewIngestService(&fakeStore{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			svc.Ingest(context.Background(), &models.ListingRecord{ID: string(rune('a' + n))})
		}(i)
	}
	wg.Wait()

	if stored, _ := svc.Counts(); stored != 20 {
		t.Fatalf("expected 20 stored, got %d", stored)
	}
}
