// Package worker runs small asynchronous jobs on a fixed set of goroutines.
package worker

import (
	"context"
	"fmt"
	"sync"
)

// Job is a unit of work submitted to the Pool.
type Job func(ctx context.Context) error

// Pool runs jobs using a fixed number of goroutines fed from a bounded queue.
type Pool struct {
	jobs    chan Job
	done    chan struct{}
	wg      sync.WaitGroup
	workers int

	closeOnce sync.Once
	mu        sync.RWMutex // held for reading while sending on jobs
	closed    bool

	// OnError receives job errors and recovered panics. nil discards them.
	OnError func(error)
}

// NewPool creates a pool with the given number of workers and queue capacity.
func NewPool(workers, queue int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers * 2
	}
	return &Pool{
		jobs:    make(chan Job, queue),
		done:    make(chan struct{}),
		workers: workers,
	}
}

// Start launches the workers. They run until ctx is done or Close has drained the queue.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					p.run(ctx, job)
				}
			}
		}()
	}
}

func (p *Pool) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.report(fmt.Errorf("worker: job panicked: %v", r))
		}
	}()
	if err := job(ctx); err != nil {
		p.report(err)
	}
}

func (p *Pool) report(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}

// Submit enqueues a job, blocking while the queue is full.
// It returns ErrPoolClosed once Close has been called.
func (p *Pool) Submit(job Job) error {
	return p.SubmitCtx(context.Background(), job)
}

// SubmitCtx is Submit that gives up when ctx is done.
func (p *Pool) SubmitCtx(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit enqueues a job without blocking. It returns ErrQueueFull when
// there is no room.
func (p *Pool) TrySubmit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of queued jobs.
func (p *Pool) Len() int {
	return len(p.jobs)
}

// Close stops accepting new jobs, lets the workers finish the queue and waits for them.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

var (
	// ErrPoolClosed is returned if a Submit is attempted after Close.
	ErrPoolClosed = &PoolError{"worker pool closed"}
	// ErrQueueFull is returned by TrySubmit when the queue has no room.
	ErrQueueFull = &PoolError{"worker pool queue full"}
)

// PoolError provides a simple typed error for pool operations.
type PoolError struct{ msg string }

func (e *PoolError) Error() string { return e.msg }
