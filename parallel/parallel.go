// Package parallel provides functions for expressing parallel
// divide-and-conquer algorithms over integer ranges.
//
// All functions take the execution settings from the execution context
// visible through their context.Context argument (see package execution):
// the number of processors determines how finely work is split, and forked
// halves are submitted to the context's executor. With a single processor
// everything runs sequentially on the calling goroutine.
package parallel

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/exascience/aprt"
	"github.com/exascience/aprt/execution"
	"github.com/exascience/aprt/internal"
	"github.com/exascience/aprt/sequential"
)

// A task is a forked computation that can be joined exactly once. Whoever
// claims it first runs it: an executor worker, or the joining goroutine if
// no worker got to it yet.
type task[T any] struct {
	claimed atomic.Bool
	done    chan struct{}
	fn      func() (T, error)
	result  T
	err     error
	p       interface{}
}

func fork[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *task[T] {
	executor := execution.ExecutorFor(ctx)
	if pool, ok := executor.(*execution.Pool); ok {
		ctx = execution.WithinPool(ctx, pool)
	}
	t := &task[T]{done: make(chan struct{})}
	t.fn = func() (T, error) { return fn(ctx) }
	executor.Execute(t.run)
	return t
}

func (t *task[T]) run() {
	if !t.claimed.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			t.p = internal.WrapPanic(p)
		}
		close(t.done)
	}()
	t.result, t.err = t.fn()
}

func (t *task[T]) join() (T, error) {
	t.run()
	<-t.done
	if t.p != nil {
		panic(t.p)
	}
	return t.result, t.err
}

func processors(ctx context.Context) int {
	return execution.GetContext(ctx).NumberOfProcessors()
}

// RecursiveCompute receives an inclusive range from min to max, a leaf
// function, and a combiner, and computes the same result as
//
//	combine(...combine(combine(leaf(min), leaf(min+1)), leaf(min+2))..., leaf(max))
//
// in parallel. The range is divided into batches by recursive bisection;
// the right half of each split is forked onto the executor of the visible
// execution context while the left half is computed on the current
// goroutine, and the results are always combined as combine(left, right).
// The combiner must be associative; it does not need to be commutative.
//
// If the visible execution context has a single processor, or the range
// has a single element, RecursiveCompute computes the left fold
// sequentially without forking anything.
//
// The leaf function receives a context.Context that carries the same
// execution context, so nested parallel computations inside a leaf reuse
// the executor, and in particular the worker pool, of the enclosing one.
//
// If any leaf or combine invocation returns an error, leaves that have not
// started yet are skipped, and RecursiveCompute returns the zero value of
// T together with the first error that aborted the computation. This is
// not necessarily the left-most one: once an error cancels the
// computation, leaves to its left observe the cancelation and report that
// same error. Canceling ctx has the same effect, with the cancelation
// cause as error.
//
// If one or more invocations panic, the corresponding goroutines recover
// the panics, and RecursiveCompute eventually panics with the left-most
// recovered panic value.
//
// RecursiveCompute panics with an error wrapping aprt.ErrIllegalArgument
// if max < min, or if max is math.MaxInt.
func RecursiveCompute[T any](
	ctx context.Context,
	min, max int,
	leaf func(ctx context.Context, i int) (T, error),
	combine func(x, y T) (T, error),
) (T, error) {
	switch {
	case max < min:
		panic(fmt.Errorf("%w: invalid range: %v:%v", aprt.ErrIllegalArgument, min, max))
	case max == math.MaxInt:
		panic(fmt.Errorf("%w: inclusive range must end before math.MaxInt: %v:%v", aprt.ErrIllegalArgument, min, max))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	n := processors(ctx)
	if n <= 1 || min == max {
		return sequential.RecursiveCompute(ctx, min, max, leaf, combine)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var recur func(context.Context, int, int, int) (T, error)
	recur = func(ctx context.Context, low, high, n int) (result T, err error) {
		if n > 1 {
			batchSize := ((high - low - 1) / n) + 1
			half := n / 2
			mid := low + batchSize*half
			if mid < high {
				right := fork(ctx, func(ctx context.Context) (T, error) {
					return recur(ctx, mid, high, n-half)
				})
				left, err0 := recur(ctx, low, mid, half)
				rightResult, err1 := right.join()
				switch {
				case err0 != nil:
					return result, err0
				case err1 != nil:
					return result, err1
				}
				if result, err = combine(left, rightResult); err != nil {
					cancel(err)
				}
				return
			}
		}
		if result, err = sequential.RecursiveCompute(ctx, low, high-1, leaf, combine); err != nil {
			cancel(err)
		}
		return
	}

	result, err := recur(ctx, min, max+1, internal.ComputeNofBatches(min, max+1, n))
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Do receives zero or more thunks and executes them in parallel.
//
// Thunks are split by recursive bisection, forking the right half onto the
// executor of the visible execution context. Do returns only when all
// thunks have terminated, returning the left-most error value that is
// different from nil. With a single processor, the thunks run sequentially.
//
// If one or more thunks panic, the corresponding goroutines recover the
// panics, and Do eventually panics with the left-most recovered panic
// value.
func Do(ctx context.Context, thunks ...func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	switch len(thunks) {
	case 0:
		return nil
	case 1:
		return thunks[0](ctx)
	}
	if processors(ctx) <= 1 {
		return sequential.Do(ctx, thunks...)
	}
	half := len(thunks) / 2
	right := fork(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, Do(ctx, thunks[half:]...)
	})
	err0 := Do(ctx, thunks[:half]...)
	_, err1 := right.join()
	if err0 != nil {
		return err0
	}
	return err1
}

// Range receives a half-open range from low to high, including low but
// excluding high, divides it into batches, and invokes f for each of these
// batches in parallel.
//
// The number of batches is twice the number of processors of the visible
// execution context, capped at the size of the range. Range returns only
// when all invocations of f have terminated, returning the left-most error
// value that is different from nil.
//
// Range panics with an error wrapping aprt.ErrIllegalArgument if high <
// low.
//
// If one or more invocations of f panic, the corresponding goroutines
// recover the panics, and Range eventually panics with the left-most
// recovered panic value.
func Range(
	ctx context.Context,
	low, high int,
	f func(ctx context.Context, low, high int) error,
) error {
	if high < low {
		panic(fmt.Errorf("%w: invalid range: %v:%v", aprt.ErrIllegalArgument, low, high))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	n := processors(ctx)
	if n <= 1 {
		return sequential.Range(ctx, low, high, f)
	}
	var recur func(context.Context, int, int, int) error
	recur = func(ctx context.Context, low, high, n int) error {
		if n > 1 {
			batchSize := ((high - low - 1) / n) + 1
			half := n / 2
			mid := low + batchSize*half
			if mid < high {
				right := fork(ctx, func(ctx context.Context) (struct{}, error) {
					return struct{}{}, recur(ctx, mid, high, n-half)
				})
				err0 := recur(ctx, low, mid, half)
				_, err1 := right.join()
				if err0 != nil {
					return err0
				}
				return err1
			}
		}
		return f(ctx, low, high)
	}
	return recur(ctx, low, high, internal.ComputeNofBatches(low, high, n))
}
