package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/driftweb/crawlindex/internal/store/sqlite"
)

// TestLocker_IsFIFO verifies waiters are granted the lock in arrival
// order, not merely mutually excluded. A non-FIFO implementation (every
// waiter racing one shared "current holder" channel through an unordered
// sync.Mutex) passes a plain mutual-exclusion test but fails this one.
func TestLocker_IsFIFO(t *testing.T) {
	l := sqlite.NewLocker()
	ctx := context.Background()

	release, err := l.Lock(ctx, "name")
	if err != nil {
		t.Fatalf("initial lock: %v", err)
	}

	const waiters = 8
	arrived := make(chan int, waiters)
	order := make(chan int, waiters)
	var wg sync.WaitGroup

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Queue up in order, each only proceeding to Lock once its
			// predecessor is confirmed enqueued, so queue arrival order is
			// deterministic despite goroutine scheduling.
			<-waitTurn(arrived, i)
			release, err := l.Lock(ctx, "name")
			if err != nil {
				t.Errorf("waiter %d lock: %v", i, err)
				return
			}
			order <- i
			release()
		}(i)
	}

	// Release waiters to enqueue strictly in order 0..waiters-1.
	go func() {
		for i := 0; i < waiters; i++ {
			arrived <- i
			time.Sleep(2 * time.Millisecond) // let goroutine i reach Lock's queue append before releasing i+1
		}
	}()

	time.Sleep(time.Duration(waiters) * 3 * time.Millisecond)
	release()

	wg.Wait()
	close(order)

	var got []int
	for i := range order {
		got = append(got, i)
	}
	if len(got) != waiters {
		t.Fatalf("expected %d waiters to acquire the lock, got %d: %v", waiters, len(got), got)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("lock not granted in FIFO order: got %v, want 0..%d in order", got, waiters-1)
		}
	}
}

// waitTurn returns a channel that fires once i has been sent on arrived.
func waitTurn(arrived <-chan int, want int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for v := range arrived {
			if v == want {
				close(done)
				return
			}
		}
	}()
	return done
}

// TestLocker_ContextCancellationPassesTheBaton verifies that a waiter
// abandoning the queue on ctx cancellation does not strand the waiter
// behind it — abandon must still close its own channel.
func TestLocker_ContextCancellationPassesTheBaton(t *testing.T) {
	l := sqlite.NewLocker()
	ctx := context.Background()

	release, err := l.Lock(ctx, "name")
	if err != nil {
		t.Fatalf("initial lock: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	abandonedDone := make(chan error, 1)
	go func() {
		_, err := l.Lock(cancelCtx, "name")
		abandonedDone <- err
	}()

	successorDone := make(chan error, 1)
	go func() {
		time.Sleep(5 * time.Millisecond) // ensure the abandoned waiter enqueues first
		release, err := l.Lock(ctx, "name")
		if err == nil {
			release()
		}
		successorDone <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-abandonedDone:
		if err == nil {
			t.Fatal("expected abandoned waiter to return ctx.Err()")
		}
	case <-time.After(time.Second):
		t.Fatal("abandoned waiter never returned")
	}

	release()

	select {
	case err := <-successorDone:
		if err != nil {
			t.Fatalf("successor waiter was stranded: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("successor waiter never acquired the lock after predecessor abandoned")
	}
}

// TestLocker_NamesAreIndependent verifies two distinct names never
// contend with each other.
func TestLocker_NamesAreIndependent(t *testing.T) {
	l := sqlite.NewLocker()
	ctx := context.Background()

	releaseA, err := l.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := l.Lock(ctx, "b")
		if err != nil {
			t.Errorf("lock b: %v", err)
			return
		}
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a distinct name blocked behind an unrelated held lock")
	}
}
