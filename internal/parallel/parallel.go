// Package parallel runs independent partitions on a bounded worker pool.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map applies fn to every key using at most workers goroutines.
// Results keep the order of keys regardless of scheduling.
// The first error cancels the remaining partitions and is returned.
func Map[K any, V any](ctx context.Context, workers int, keys []K, fn func(ctx context.Context, key K) (V, error)) ([]V, error) {
	out := make([]V, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, k := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := fn(gctx, k)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
