// Package pool runs destination calls off the caller's goroutine.
//
// A pool is unbounded by default. With a bound, submissions beyond it wait
// for a free worker instead of being rejected, so saturation shows up as
// latency.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/surrealdb/migrator/pkg/constants"
	"golang.org/x/sync/semaphore"
)

type Pool struct {
	sem      *semaphore.Weighted
	size     int
	// mu orders wg.Add in Submit before wg.Wait in Close.
	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
	queued   atomic.Int64
}

// New returns a pool running at most size tasks at once. A size of zero or
// less means no bound.
func New(size int) *Pool {
	p := &Pool{size: size}
	if size > 0 {
		p.sem = semaphore.NewWeighted(int64(size))
	}
	return p
}

// Size returns the bound, zero when unbounded.
func (p *Pool) Size() int {
	if p.size < 0 {
		return 0
	}
	return p.size
}

// InFlight returns the number of running tasks.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int {
	return int(p.queued.Load())
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed when the task has finished or was abandoned.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result must only be called after Done is closed.
func (f *Future[T]) Result() (T, error) {
	return f.val, f.err
}

// Submit schedules fn and returns at once. If ctx ends while the task is
// still queued, fn is not run and the future fails with the context's cause.
func Submit[T any](p *Pool, ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		f.err = constants.ErrClosed
		close(f.done)
		return f
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer close(f.done)

		if p.sem != nil {
			p.queued.Add(1)
			err := p.sem.Acquire(ctx, 1)
			p.queued.Add(-1)
			if err != nil {
				f.err = context.Cause(ctx)
				if f.err == nil {
					f.err = err
				}
				return
			}
			defer p.sem.Release(1)
		}

		p.inFlight.Add(1)
		defer p.inFlight.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Close stops accepting tasks and waits for submitted ones until ctx ends.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
