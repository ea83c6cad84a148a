package crawler

import (
	"sync"
	"time"
)

// WorkerPool bounds in-flight detail fetches and enforces a fixed minimum
// interval between request dispatches, index pages included, so the target
// site's implicit rate limit is respected even at full concurrency.
type WorkerPool struct {
	semaphore    chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	lastDispatch time.Time
	minInterval  time.Duration
}

func NewWorkerPool(maxWorkers int, minInterval time.Duration) *WorkerPool {
	return &WorkerPool{
		semaphore:   make(chan struct{}, maxWorkers),
		minInterval: minInterval,
	}
}

// Submit blocks until a worker slot is free, then runs job after the
// inter-dispatch delay has elapsed.
func (p *WorkerPool) Submit(job func()) {
	p.wg.Add(1)
	p.semaphore <- struct{}{}

	go func() {
		defer p.wg.Done()
		defer func() { <-p.semaphore }()

		p.throttle()
		job()
	}()
}

// Wait blocks until every submitted job has finished.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) throttle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.lastDispatch)
	if elapsed < p.minInterval {
		time.Sleep(p.minInterval - elapsed)
	}
	p.lastDispatch = time.Now()
}
