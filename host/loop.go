package host

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// LoopStats contains loop statistics.
type LoopStats struct {
	Name      string `json:"name"`
	Pending   int    `json:"pending"`
	Completed int64  `json:"completed"`
	Panicked  int64  `json:"panicked"`
	Running   bool   `json:"running"`
}

// Loop is a single-goroutine task queue. It is the only execution context
// host objects are touched from, which gives host callbacks the ordering a
// browser event loop gives them. The queue is unbounded so that tasks and
// host callbacks can post from inside the loop without deadlocking.
type Loop struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	queue   []func()
	running bool
	wake    chan struct{}
	done    chan struct{}

	completed int64
	panicked  int64
}

// NewLoop creates and starts a loop. A nil logger uses slog.Default().
func NewLoop(name string, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Loop{
		name:    name,
		logger:  logger.With("loop", name),
		running: true,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	go l.run()

	return l
}

// Post queues fn to run on the loop. It never blocks.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return ErrLoopStopped
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn on the loop and waits for it. It must not be called from a
// task already running on the same loop.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	if err := l.Post(func() { errc <- fn() }); err != nil {
		return err
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the loop goroutine. After Shutdown it drains what is queued.
func (l *Loop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			running := l.running
			l.mu.Unlock()
			if !running {
				return
			}
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.runTask(fn)
	}
}

// runTask executes a single task. A panicking task is logged and counted
// so one bad host callback cannot take the loop down.
func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&l.panicked, 1)
			l.logger.Error("Panic recovered in loop task",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	fn()
	atomic.AddInt64(&l.completed, 1)
}

// Stats returns current loop statistics.
func (l *Loop) Stats() LoopStats {
	l.mu.Lock()
	pending := len(l.queue)
	running := l.running
	l.mu.Unlock()

	return LoopStats{
		Name:      l.name,
		Pending:   pending,
		Completed: atomic.LoadInt64(&l.completed),
		Panicked:  atomic.LoadInt64(&l.panicked),
		Running:   running,
	}
}

// Shutdown stops accepting tasks, runs the ones already queued and waits
// for the loop goroutine to exit. It must not be called from a loop task.
func (l *Loop) Shutdown() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.running = false
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}
