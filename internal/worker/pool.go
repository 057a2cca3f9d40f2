// Package worker implements a bounded worker pool: the one place blocking
// filesystem, subprocess, vector-store, and model-host work is allowed to
// run, off the cooperative reasoning loop. Built on
// golang.org/x/sync/errgroup plus a semaphore instead of a hand-rolled
// queue/WaitGroup pair, since errgroup already gives first-error
// propagation for free.
package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Pool bounds concurrent blocking work to a fixed number of slots. It
// holds no queue of its own — Submit blocks the caller until a slot is
// free or ctx is done.
type Pool struct {
	sem chan struct{}
}

// New builds a Pool with the given concurrency limit. A limit <= 0
// defaults to 4, matching typical local model-host concurrency.
func New(limit int) *Pool {
	if limit <= 0 {
		limit = 4
	}
	return &Pool{sem: make(chan struct{}, limit)}
}

// Submit runs fn on a pool slot and blocks until fn returns. If no slot
// becomes available before ctx is done, it returns ctx.Err() without
// running fn.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()

	return fn(ctx)
}

// SubmitAll runs fns concurrently, each bound by the same slot limit,
// and returns the first non-nil error, canceling the remaining work's
// context per errgroup semantics.
func (p *Pool) SubmitAll(ctx context.Context, fns ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error {
			return p.Submit(gctx, fn)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	return nil
}

// Available reports how many slots are free, for diagnostics only.
func (p *Pool) Available() int {
	return cap(p.sem) - len(p.sem)
}
