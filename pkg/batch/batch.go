// Package batch runs a transform over many items with bounded concurrency
// while keeping results in input order.
package batch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Default sizing used by evidence curation.
const (
	DefaultBatchSize   = 8
	DefaultConcurrency = 8
)

// CreateBatches splits items into consecutive batches of size, with a
// final shorter batch for the remainder. Empty input yields no batches.
// A size below 1 is treated as 1.
func CreateBatches[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	if len(items) == 0 {
		return [][]T{}
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}

// Transform processes one item. index is the item's position in the input.
type Transform[T, R any] func(ctx context.Context, index int, item T) (R, error)

// Run applies fn to every item with at most concurrency calls in flight
// and returns the results in input order, whatever order they finish in.
//
// The first error cancels the context passed to the remaining calls and is
// returned with the item index. A concurrency below 1 is treated as 1.
func Run[T, R any](ctx context.Context, items []T, concurrency int, fn Transform[T, R]) ([]R, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, i, item)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			// Each goroutine owns exactly one slot.
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunBatches splits items with CreateBatches and runs fn over the batches
// with Run. The returned slice has one entry per batch, in order.
func RunBatches[T, R any](ctx context.Context, items []T, size, concurrency int, fn func(ctx context.Context, index int, batch []T) (R, error)) ([]R, error) {
	return Run(ctx, CreateBatches(items, size), concurrency, Transform[[]T, R](fn))
}
