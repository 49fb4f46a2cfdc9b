// Package worker provides the bounded fan-out used for parallel segment
// scans. One goroutine per segment, first error cancels the rest.
package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool runs a fixed number of workers over the segments of a partitioned
// data set. Worker i is handed segment i of Workers() total segments, so
// the pool size doubles as the segment count.
type Pool struct {
	workers int
}

// NewPool creates a pool with the given worker count, at least one
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Workers returns the worker and segment count
func (p *Pool) Workers() int {
	return p.workers
}

// Run invokes fn once per segment index, one goroutine each. The context
// handed to fn is canceled as soon as any worker fails, and the first
// error is returned after all workers have stopped. Shared state inside fn
// is the caller's to guard.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context, segment int) error) error {
	eg, workCtx := errgroup.WithContext(ctx)
	for segment := 0; segment < p.workers; segment++ {
		segment := segment
		eg.Go(func() error {
			return fn(workCtx, segment)
		})
	}
	return eg.Wait()
}
