// Package worker runs background tasks on a fixed pool of goroutines fed by
// a bounded queue.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = eris.New("worker: queue full")
	// ErrClosed is returned by Submit after Shutdown has begun.
	ErrClosed = eris.New("worker: executor closed")
)

// Task is a unit of background work.
type Task func(ctx context.Context)

// Executor runs submitted tasks on a fixed number of goroutines. Tasks run
// on a context detached from the submitter, so they outlive the request that
// queued them.
type Executor struct {
	tasks chan Task
	base  context.Context
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewExecutor starts concurrency workers reading from a queue of queueSize
// slots. Values below 1 are raised to 1.
func NewExecutor(ctx context.Context, concurrency, queueSize int) *Executor {
	if concurrency < 1 {
		concurrency = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	e := &Executor{
		tasks: make(chan Task, queueSize),
		base:  context.WithoutCancel(ctx),
	}
	e.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go e.loop(i)
	}
	return e
}

// Submit enqueues t without blocking.
func (e *Executor) Submit(t Task) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	select {
	case e.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued tasks not yet picked up.
func (e *Executor) Pending() int {
	return len(e.tasks)
}

// Shutdown stops intake and waits for queued and running tasks to finish,
// or for ctx to end.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.tasks)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrapf(ctx.Err(), "worker: shutdown with %d tasks queued", len(e.tasks))
	}
}

func (e *Executor) loop(id int) {
	defer e.wg.Done()
	for t := range e.tasks {
		e.run(id, t)
	}
}

func (e *Executor) run(id int, t Task) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("worker: task panicked",
				zap.Int("worker", id),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
		}
	}()
	t(e.base)
}
