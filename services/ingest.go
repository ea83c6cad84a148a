package services

import (
	"context"
	"log"
	"sync"

	"imovelsage/models"
)

// ListingStore is the write contract the gateway needs from durable storage.
type ListingStore interface {
	UpsertListing(ctx context.Context, rec *models.ListingRecord) error
}

// IngestService is the persistence gateway: the only component that mutates
// the durable listings table. A failed write is isolated to its record; the
// failure counter goes up and the run continues.
type IngestService struct {
	store ListingStore

	mu     sync.Mutex
	stored int
	failed int
}

func NewIngestService(store ListingStore) *IngestService {
	return &IngestService{store: store}
}

// Ingest upserts one record, reporting whether it was stored. Safe for
// concurrent use by detail workers.
func (s *IngestService) Ingest(ctx context.Context, rec *models.ListingRecord) bool {
	if err := s.store.UpsertListing(ctx, rec); err != nil {
		s.mu.Lock()
		s.failed++
		failed := s.failed
		s.mu.Unlock()
		log.Printf("[ingest] failed to store %s: %v | failures: %d", rec.ID, err, failed)
		return false
	}

	s.mu.Lock()
	s.stored++
	stored := s.stored
	s.mu.Unlock()
	log.Printf("[ingest] stored %s (page %d) | total stored: %d", rec.ID, rec.ListingPageNumber, stored)
	return true
}

// Counts returns the running success/failure counters.
func (s *IngestService) Counts() (stored, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored, s.failed
}

// Reset zeroes the counters at the start of a run.
func (s *IngestService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = 0
	s.failed = 0
}
