package codec

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of codec operations running at once.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool with the given number of workers; non-positive
// means one per CPU.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

type result[T any] struct {
	val T
	err error
}

// Do runs fn on a pool worker and waits for it or for ctx, whichever comes
// first. A worker slot stays taken until fn returns, even if ctx won.
func Do[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, context.Cause(ctx)
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, context.Cause(ctx)
	}

	done := make(chan result[T], 1)
	go func() {
		defer p.sem.Release(1)
		v, err := fn()
		done <- result[T]{val: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return zero, context.Cause(ctx)
	case r := <-done:
		return r.val, r.err
	}
}
