package application

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// forEach runs fn for every item with at most limit calls in flight. Results
// keep the order of items. An error is only returned when ctx is done before
// every item was started.
func forEach[T, R any](ctx context.Context, limit int, items []T, fn func(context.Context, T) R) ([]R, error) {
	results := make([]R, len(items))
	sem := semaphore.NewWeighted(int64(limit))
	g, gctx := errgroup.WithContext(ctx)

	for i, item := range items {
		if err := sem.Acquire(gctx, 1); err != nil {
			_ = g.Wait()
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = fn(gctx, item)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
