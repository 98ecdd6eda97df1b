package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue used by tests and by single-binary
// deployments that do not want a Redis dependency. FIFO order is preserved;
// durability is not.
type MemoryQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []int64
	closed bool
}

// NewMemoryQueue returns an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a job id.
func (q *MemoryQueue) Push(ctx context.Context, jobID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, jobID)
	q.cond.Signal()
	return nil
}

// Pop blocks up to timeout for the next job id. A zero timeout blocks until
// an item arrives, the queue closes, or ctx is done.
func (q *MemoryQueue) Pop(ctx context.Context, timeout time.Duration) (int64, bool, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	// The condition variable cannot watch ctx or the deadline directly, so a
	// helper goroutine wakes all waiters when either fires.
	done := make(chan struct{})
	defer close(done)
	go func() {
		var expired <-chan time.Time
		if !deadline.IsZero() {
			timer := time.NewTimer(time.Until(deadline))
			defer timer.Stop()
			expired = timer.C
		}
		select {
		case <-ctx.Done():
		case <-expired:
		case <-done:
			return
		}
		// Taking the lock orders the wakeup after the waiter's re-check and
		// Wait; a bare Broadcast could fire in between and be missed.
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if len(q.items) > 0 {
			id := q.items[0]
			q.items = q.items[1:]
			return id, true, nil
		}
		if q.closed {
			return 0, false, ErrClosed
		}
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return 0, false, nil
		}
		q.cond.Wait()
	}
}

// Len reports the number of queued jobs.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ping always succeeds while the queue is open.
func (q *MemoryQueue) Ping(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	return nil
}

// Close wakes any blocked consumers. Safe to call more than once.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
	return nil
}
