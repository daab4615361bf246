// Package batch runs a unit of work over many items with bounded
// concurrency, pacing and cooperative cancellation.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// ErrPanic wraps a panic raised by a unit of work.
var ErrPanic = errors.New("unit of work panicked")

// Options tunes a Run. Every callback is optional.
//
// Callbacks are serialized: no two of them run at the same time, so they
// may update caller state without extra locking.
type Options[T any] struct {
	// Concurrency bounds the units of work in flight. Values below 1 mean 1.
	Concurrency int
	// Delay is the pause taken after every Concurrency dispatches.
	Delay time.Duration
	// OnProgress receives the cumulative processed count once every
	// Concurrency completions and on the last one.
	OnProgress func(processed, total int)
	// OnError receives each failed item with its index in the input.
	OnError func(err error, item T, index int)
	// ShouldCancel is polled before each item is dispatched.
	ShouldCancel func() bool
}

// Result is the outcome of a Run.
type Result[R any] struct {
	// Results holds successful results in input order.
	Results   []R
	Processed int
	Failed    int
	Cancelled bool
}

// Run applies fn to items through a rolling pool: the next item starts as
// soon as a slot frees. A failing item never stops the others. Cancellation
// through ctx or ShouldCancel stops dispatching; items already started run
// to completion.
func Run[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error), opts Options[T]) Result[R] {
	total := len(items)
	if total == 0 {
		return Result[R]{Results: []R{}}
	}

	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	var (
		mu       sync.Mutex
		res      Result[R]
		reported int
		values   = make([]R, total)
		ok       = make([]bool, total)
	)

	slots := make(chan struct{}, limit)
	p := pool.New().WithMaxGoroutines(limit)

	for i, item := range items {
		if i > 0 && i%limit == 0 && opts.Delay > 0 {
			if !sleep(ctx, opts.Delay) {
				res.Cancelled = true
				break
			}
		}

		slots <- struct{}{}
		mu.Lock()
		stop := cancelled(ctx, opts.ShouldCancel)
		mu.Unlock()
		if stop {
			<-slots
			res.Cancelled = true
			break
		}

		p.Go(func() {
			defer func() { <-slots }()

			value, err := call(ctx, fn, item)

			mu.Lock()
			defer mu.Unlock()

			res.Processed++
			if err != nil {
				res.Failed++
				if opts.OnError != nil {
					opts.OnError(err, item, i)
				}
			} else {
				values[i] = value
				ok[i] = true
			}

			if opts.OnProgress != nil && (res.Processed%limit == 0 || res.Processed == total) {
				reported = res.Processed
				opts.OnProgress(res.Processed, total)
			}
		})
	}

	p.Wait()

	if res.Cancelled && opts.OnProgress != nil && res.Processed > 0 && reported != res.Processed {
		opts.OnProgress(res.Processed, total)
	}

	res.Results = make([]R, 0, total-res.Failed)
	for i := range values {
		if ok[i] {
			res.Results = append(res.Results, values[i])
		}
	}

	return res
}

func call[T, R any](ctx context.Context, fn func(context.Context, T) (R, error), item T) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(ctx, item)
}

func cancelled(ctx context.Context, shouldCancel func() bool) bool {
	if ctx.Err() != nil {
		return true
	}
	return shouldCancel != nil && shouldCancel()
}

// sleep waits for d and reports false if ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
