// Package workerpool implements the fixed worker pool described in
// spec.md §5: a bounded number of concurrently running tasks, sized to
// hardware parallelism by default. Admission is gated by a weighted
// semaphore. The pool does not bind connections to workers; a caller
// acquires and releases one slot per task (canopy's Server does so per
// request).
package workerpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of concurrently running tasks.
type Pool struct {
	sem *semaphore.Weighted
	n   int64
}

// New returns a Pool sized to size workers. size <= 0 means hardware
// parallelism (runtime.GOMAXPROCS(0)), matching spec.md §5's default.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), n: int64(size)}
}

// Acquire blocks until a worker slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}

// Release frees the worker slot acquired by a prior successful Acquire.
func (p *Pool) Release() {
	p.sem.Release(1)
}

// Size returns the pool's configured capacity.
func (p *Pool) Size() int {
	return int(p.n)
}

// Run acquires a slot, runs fn, then releases the slot. If ctx is
// cancelled before a slot is available, fn does not run and Run returns
// ctx.Err().
func (p *Pool) Run(ctx context.Context, fn func()) error {
	if err := p.Acquire(ctx); err != nil {
		return err
	}
	defer p.Release()
	fn()
	return nil
}
