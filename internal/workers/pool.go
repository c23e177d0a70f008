// Package workers runs short tasks on a fixed set of goroutines with a
// bounded queue.
package workers

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed = errors.New("workers: pool is shut down")
	ErrQueueFull  = errors.New("workers: task queue is full")
)

// Stats contains pool statistics.
type Stats struct {
	Name      string `json:"name"`
	Workers   int    `json:"workers"`
	Active    int64  `json:"active"`
	Completed int64  `json:"completed"`
	Panicked  int64  `json:"panicked"`
	Pending   int    `json:"pending"`
}

// Pool executes submitted funcs concurrently.
type Pool struct {
	name    string
	workers int
	tasks   chan func()
	logger  *slog.Logger
	wg      sync.WaitGroup

	active    int64
	completed int64
	panicked  int64

	mu      sync.RWMutex
	running bool
}

// New starts a pool of workers goroutines with room for queue pending
// tasks. Non-positive sizes are raised to 1.
func New(name string, workers, queue int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		name:    name,
		workers: workers,
		tasks:   make(chan func(), queue),
		logger:  logger.With("pool", name),
		running: true,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)

	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.panicked, 1)
			p.logger.Error("Task panicked", "panic", fmt.Sprint(r))
		}
	}()

	task()
	atomic.AddInt64(&p.completed, 1)
}

// Submit queues task without blocking.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Name:      p.name,
		Workers:   p.workers,
		Active:    atomic.LoadInt64(&p.active),
		Completed: atomic.LoadInt64(&p.completed),
		Panicked:  atomic.LoadInt64(&p.panicked),
		Pending:   len(p.tasks),
	}
}

// Shutdown stops accepting tasks, runs the queued ones and waits for the
// workers to exit. It is safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
