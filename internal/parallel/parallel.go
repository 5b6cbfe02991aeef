// Package parallel runs collector phases on a fixed set of worker
// goroutines with a barrier at the end of each phase.
package parallel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var errPanicked = errors.New("parallel: worker panicked")

// Run calls fn on workers goroutines, each with its worker id, and waits
// for all of them. It returns the first error. A panic in any worker is
// re-raised on the calling goroutine once every worker has returned.
func Run(ctx context.Context, workers int, fn func(ctx context.Context, id int) error) error {
	workers = max(workers, 1)
	g, gctx := errgroup.WithContext(ctx)

	var (
		mu       sync.Mutex
		panicked any
	)
	for id := range workers {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					if panicked == nil {
						panicked = r
					}
					mu.Unlock()
					err = errPanicked
				}
			}()
			return fn(gctx, id)
		})
	}

	err := g.Wait()
	if panicked != nil {
		panic(panicked)
	}
	return err
}

// For calls fn for every index in [0, n), handing out contiguous chunks to
// workers goroutines.
func For(ctx context.Context, n, workers int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	workers = min(max(workers, 1), n)
	chunk := int64(max(n/(workers*4), 1))

	var next atomic.Int64
	return Run(ctx, workers, func(ctx context.Context, _ int) error {
		for {
			start := next.Add(chunk) - chunk
			if start >= int64(n) {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+chunk, int64(n))
			for i := start; i < end; i++ {
				if err := fn(int(i)); err != nil {
					return err
				}
			}
		}
	})
}
