// Package sequential provides sequential implementations of the
// functions provided by the parallel package.
//
// The parallel package falls back to these implementations when the
// visible execution context has only one processor, so they never spawn
// goroutines and always terminate without an executor. They are also
// useful for testing and debugging.
package sequential

import (
	"context"
	"fmt"
	"math"

	"github.com/exascience/aprt"
)

func checkRange(low, high int) {
	if high < low {
		panic(fmt.Errorf("%w: invalid range: %v:%v", aprt.ErrIllegalArgument, low, high))
	}
}

func checkInclusiveRange(min, max int) {
	checkRange(min, max)
	if max == math.MaxInt {
		panic(fmt.Errorf("%w: inclusive range must end before math.MaxInt: %v:%v", aprt.ErrIllegalArgument, min, max))
	}
}

func canceled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

// RecursiveCompute receives an inclusive range from min to max, a leaf
// function, and a combiner, and computes
//
//	combine(...combine(combine(leaf(min), leaf(min+1)), leaf(min+2))..., leaf(max))
//
// from left to right.
//
// RecursiveCompute stops at the first error returned by leaf or combine and
// returns it with the zero value of T. It also stops before the next leaf
// invocation if ctx is canceled, returning the cause of the cancelation.
//
// RecursiveCompute panics with an error wrapping aprt.ErrIllegalArgument
// if max < min, or if max is math.MaxInt.
func RecursiveCompute[T any](
	ctx context.Context,
	min, max int,
	leaf func(ctx context.Context, i int) (T, error),
	combine func(x, y T) (T, error),
) (result T, err error) {
	checkInclusiveRange(min, max)
	var zero T
	if err = canceled(ctx); err != nil {
		return zero, err
	}
	if result, err = leaf(ctx, min); err != nil {
		return zero, err
	}
	for i := min + 1; i <= max; i++ {
		if err = canceled(ctx); err != nil {
			return zero, err
		}
		var next T
		if next, err = leaf(ctx, i); err != nil {
			return zero, err
		}
		if result, err = combine(result, next); err != nil {
			return zero, err
		}
	}
	return result, nil
}

// Do receives zero or more thunks and executes them sequentially, returning
// the left-most error value that is different from nil. All thunks are
// executed, even after an error.
func Do(ctx context.Context, thunks ...func(ctx context.Context) error) (err error) {
	for _, thunk := range thunks {
		nerr := thunk(ctx)
		if err == nil {
			err = nerr
		}
	}
	return
}

// Range receives a half-open range from low to high, including low but
// excluding high, and invokes f once for the whole range.
//
// Range panics with an error wrapping aprt.ErrIllegalArgument if high <
// low.
func Range(
	ctx context.Context,
	low, high int,
	f func(ctx context.Context, low, high int) error,
) error {
	checkRange(low, high)
	return f(ctx, low, high)
}
