package crawler

import (
	"sync"
	"time"
)

// Progress tracks per-run counters for the operator-facing summary and the
// rolling ETA estimate. Purely ephemeral; nothing here is persisted.
type Progress struct {
	mu            sync.Mutex
	startedAt     time.Time
	expectedPages int

	PagesVisited   int
	PagesSkipped   int
	ListingsSeen   int
	ListingsStored int
	ListingsFailed int
}

func NewProgress(expectedPages int) *Progress {
	return &Progress{
		startedAt:     time.Now(),
		expectedPages: expectedPages,
	}
}

// PageDone records a visited page and returns the ETA for the remaining
// crawl based on the average page time so far.
func (p *Progress) PageDone(listings int) (visited int, eta time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.PagesVisited++
	p.ListingsSeen += listings

	avg := time.Since(p.startedAt) / time.Duration(p.PagesVisited)
	left := p.expectedPages - p.PagesVisited
	if left < 0 {
		left = 0
	}
	return p.PagesVisited, avg * time.Duration(left)
}

func (p *Progress) PageSkipped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PagesSkipped++
}

func (p *Progress) ListingStored() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListingsStored++
}

func (p *Progress) ListingFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListingsFailed++
}

// Counters is a consistent snapshot of a run's progress.
type Counters struct {
	PagesVisited   int
	PagesSkipped   int
	ListingsSeen   int
	ListingsStored int
	ListingsFailed int
}

func (p *Progress) Snapshot() Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Counters{
		PagesVisited:   p.PagesVisited,
		PagesSkipped:   p.PagesSkipped,
		ListingsSeen:   p.ListingsSeen,
		ListingsStored: p.ListingsStored,
		ListingsFailed: p.ListingsFailed,
	}
}
