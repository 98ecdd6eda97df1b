package queue

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		if err := q.Push(ctx, id); err != nil {
			t.Fatalf("Push(%d) failed: %v", id, err)
		}
	}
	for _, want := range []int64{1, 2, 3} {
		got, ok, err := q.Pop(ctx, time.Second)
		if err != nil || !ok {
			t.Fatalf("Pop: ok=%v err=%v", ok, err)
		}
		if got != want {
			t.Errorf("popped %d, want %d", got, want)
		}
	}
}

func TestMemoryQueuePopTimeout(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()

	start := time.Now()
	_, ok, err := q.Pop(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Pop errored: %v", err)
	}
	if ok {
		t.Fatal("Pop reported an item from an empty queue")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Pop returned after %v, before the timeout", elapsed)
	}
}

func TestMemoryQueuePopTimeoutRepeated(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	// Each empty Pop must come back on its own timeout, never hang until
	// the next Push or Close wakes it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			if _, ok, err := q.Pop(ctx, 5*time.Millisecond); ok || err != nil {
				t.Errorf("iteration %d: ok=%v err=%v", i, ok, err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("a timed Pop failed to wake without external help")
	}
}

func TestMemoryQueuePopWakesOnPush(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(ctx, 7)
	}()

	got, ok, err := q.Pop(ctx, 2*time.Second)
	if err != nil || !ok {
		t.Fatalf("Pop: ok=%v err=%v", ok, err)
	}
	if got != 7 {
		t.Errorf("popped %d, want 7", got)
	}
}

func TestMemoryQueuePopHonorsContext(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, _, err := q.Pop(ctx, 0)
	if err != context.DeadlineExceeded {
		t.Errorf("Pop err = %v, want context.DeadlineExceeded", err)
	}
}

func TestMemoryQueueClosedBehaviour(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	unblocked := make(chan error, 1)
	go func() {
		_, _, err := q.Pop(ctx, 0)
		unblocked <- err
	}()
	time.Sleep(10 * time.Millisecond)
	if err := q.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-unblocked:
		if err != ErrClosed {
			t.Errorf("blocked Pop err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock on Close")
	}

	if err := q.Push(ctx, 1); err != ErrClosed {
		t.Errorf("Push on closed queue err = %v, want ErrClosed", err)
	}
	if err := q.Ping(ctx); err != ErrClosed {
		t.Errorf("Ping on closed queue err = %v, want ErrClosed", err)
	}
}
