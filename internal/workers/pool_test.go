package workers

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	pool := New("test", 4, 16, nil)
	defer pool.Shutdown()

	stats := pool.Stats()
	if stats.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", stats.Workers)
	}
	if stats.Name != "test" {
		t.Errorf("Expected name 'test', got %s", stats.Name)
	}
}

func TestNewClampsSizes(t *testing.T) {
	pool := New("clamp", 0, -1, nil)
	defer pool.Shutdown()

	if pool.Stats().Workers != 1 {
		t.Errorf("Expected 1 worker, got %d", pool.Stats().Workers)
	}
}

func TestPoolConcurrency(t *testing.T) {
	pool := New("test", 8, 200, nil)
	defer pool.Shutdown()

	var wg sync.WaitGroup
	var completed int64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&completed, 1)
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for tasks")
	}

	if atomic.LoadInt64(&completed) != 100 {
		t.Errorf("Expected 100 completed tasks, got %d", completed)
	}
}

func TestPoolQueueFull(t *testing.T) {
	pool := New("full", 1, 1, nil)
	defer pool.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	_ = pool.Submit(func() {
		close(started)
		<-release
	})
	<-started

	if err := pool.Submit(func() {}); err != nil {
		t.Fatalf("Second submit should fit the queue: %v", err)
	}
	if err := pool.Submit(func() {}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	close(release)
}

func TestPoolRecoversPanic(t *testing.T) {
	pool := New("panic", 1, 4, nil)

	_ = pool.Submit(func() { panic("boom") })
	ran := make(chan struct{})
	_ = pool.Submit(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("Pool stopped after a panicking task")
	}
	pool.Shutdown()

	stats := pool.Stats()
	if stats.Panicked != 1 {
		t.Errorf("Expected 1 panicked task, got %d", stats.Panicked)
	}
	if stats.Completed != 1 {
		t.Errorf("Expected 1 completed task, got %d", stats.Completed)
	}
}

func TestPoolShutdown(t *testing.T) {
	pool := New("shutdown", 2, 10, nil)

	var ran int64
	for i := 0; i < 10; i++ {
		_ = pool.Submit(func() { atomic.AddInt64(&ran, 1) })
	}
	pool.Shutdown()

	if atomic.LoadInt64(&ran) != 10 {
		t.Errorf("Expected queued tasks to run before shutdown, got %d", ran)
	}
	if err := pool.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed, got %v", err)
	}

	// Second shutdown is a no-op.
	pool.Shutdown()
}
