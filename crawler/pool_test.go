package crawler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2, 0)

	var active, peak int32
	var mu sync.Mutex

	for i := 0; i < 10; i++ {
		pool.Submit(func() {
			n := atomic.AddInt32(&active, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		})
	}
	pool.Wait()

	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent jobs, saw %d", peak)
	}
}

func TestWorkerPool_WaitRunsAllJobs(t *testing.T) {
	pool := NewWorkerPool(3, 0)

	var done int32
	for i := 0; i < 25; i++ {
		pool.Submit(func() {
			atomic.AddInt32(&done, 1)
		})
	}
	pool.Wait()

	if done != 25 {
		t.Fatalf("expected 25 jobs done, got %d", done)
	}
}
