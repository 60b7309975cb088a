// Package parallel provides bounded per-index fan-out within a single filter step.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// For calls fn for every index in [0, n) using at most workers goroutines.
// If workers is not positive, runtime.GOMAXPROCS(0) workers are used; if it
// equals 1 fn is called sequentially in index order. fn must only write to
// state owned by its index. For returns the first error returned by fn and
// stops scheduling new indices once an error occurs or ctx is done.
func For(ctx context.Context, n, workers int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	if workers == 1 || n == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			return fn(i)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}
