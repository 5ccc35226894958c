package parallel_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/exascience/aprt"
	"github.com/exascience/aprt/execution"
	"github.com/exascience/aprt/parallel"
	"github.com/exascience/aprt/sequential"
)

func withProcessors(n int) context.Context {
	return execution.SetThreadContext(context.Background(), execution.New(execution.WithNumberOfProcessors(n)))
}

func product(x, y int64) (int64, error) { return x * y, nil }

func identity(_ context.Context, i int) (int64, error) { return int64(i), nil }

func concat(x, y string) (string, error) { return x + "," + y, nil }

func itoa(_ context.Context, i int) (string, error) { return strconv.Itoa(i), nil }

func ExampleRecursiveCompute() {
	ctx := withProcessors(4)
	result, err := parallel.RecursiveCompute(ctx, 1, 15, identity, product)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(result)

	// Output:
	// 1307674368000
}

func TestRecursiveComputeMatchesLeftFold(t *testing.T) {
	ranges := [][2]int{{0, 0}, {0, 1}, {1, 15}, {-7, 5}, {3, 100}, {0, 1000}}
	for n := 1; n <= 32; n++ {
		ctx := withProcessors(n)
		for _, r := range ranges {
			expected, err := sequential.RecursiveCompute(context.Background(), r[0], r[1], itoa, concat)
			if err != nil {
				t.Fatal(err)
			}
			result, err := parallel.RecursiveCompute(ctx, r[0], r[1], itoa, concat)
			if err != nil {
				t.Fatal(err)
			}
			if result != expected {
				t.Errorf("processors %v, range %v: got %v, expected %v", n, r, result, expected)
			}
		}
	}
}

func TestRecursiveComputeOnPool(t *testing.T) {
	for _, workers := range []int{1, 2, 8} {
		pool := execution.NewPool(workers, 1)
		ctx := execution.SetThreadContext(context.Background(),
			execution.New(execution.WithNumberOfProcessors(16), execution.WithExecutor(pool)))
		result, err := parallel.RecursiveCompute(ctx, 1, 15, identity, product)
		pool.Close()
		if err != nil {
			t.Fatal(err)
		}
		if result != 1307674368000 {
			t.Errorf("workers %v: got %v", workers, result)
		}
	}
}

func TestNestedRecursiveComputeReusesPool(t *testing.T) {
	pool := execution.NewPool(2, 1)
	defer pool.Close()
	ctx := execution.SetThreadContext(context.Background(),
		execution.New(execution.WithNumberOfProcessors(8), execution.WithExecutor(pool)))

	var foreign atomic.Int64
	result, err := parallel.RecursiveCompute(ctx, 0, 31,
		func(ctx context.Context, i int) (int64, error) {
			if p := execution.CurrentPool(ctx); p != nil && p != pool {
				foreign.Add(1)
			}
			return parallel.RecursiveCompute(ctx, 0, i,
				func(_ context.Context, j int) (int64, error) { return int64(j), nil },
				func(x, y int64) (int64, error) { return x + y, nil },
			)
		},
		func(x, y int64) (int64, error) { return x + y, nil },
	)
	if err != nil {
		t.Fatal(err)
	}
	var expected int64
	for i := 0; i <= 31; i++ {
		expected += int64(i * (i + 1) / 2)
	}
	if result != expected {
		t.Errorf("got %v, expected %v", result, expected)
	}
	if foreign.Load() != 0 {
		t.Error("nested computation ran on a different pool")
	}
}

func TestRecursiveComputeAbortsOnError(t *testing.T) {
	failure := errors.New("leaf failed")
	ctx := withProcessors(8)
	var calls atomic.Int64
	result, err := parallel.RecursiveCompute(ctx, 0, 10000,
		func(_ context.Context, i int) (int64, error) {
			calls.Add(1)
			if i == 0 {
				return 0, failure
			}
			return int64(i), nil
		},
		func(x, y int64) (int64, error) { return x + y, nil },
	)
	if !errors.Is(err, failure) {
		t.Errorf("got %v, expected %v", err, failure)
	}
	if result != 0 {
		t.Errorf("got partial result %v", result)
	}
}

func TestRecursiveComputeReportsFirstError(t *testing.T) {
	failure := errors.New("right leaf failed")
	_, err := parallel.RecursiveCompute(withProcessors(2), 0, 1,
		func(ctx context.Context, i int) (int64, error) {
			if i == 1 {
				return 0, failure
			}
			select {
			case <-ctx.Done():
				return 0, context.Cause(ctx)
			case <-time.After(5 * time.Second):
				return 0, errors.New("left leaf not canceled")
			}
		},
		func(x, y int64) (int64, error) { return x + y, nil },
	)
	if !errors.Is(err, failure) {
		t.Errorf("got %v, expected %v", err, failure)
	}
}

func TestRecursiveComputeCombinerError(t *testing.T) {
	failure := errors.New("combine failed")
	_, err := parallel.RecursiveCompute(withProcessors(4), 0, 100, identity,
		func(x, y int64) (int64, error) {
			if y > 50 {
				return 0, failure
			}
			return x + y, nil
		},
	)
	if !errors.Is(err, failure) {
		t.Errorf("got %v, expected %v", err, failure)
	}
}

func TestRecursiveComputePanics(t *testing.T) {
	defer func() {
		if p := recover(); p == nil {
			t.Error("expected a panic")
		}
	}()
	_, _ = parallel.RecursiveCompute(withProcessors(4), 0, 100,
		func(_ context.Context, i int) (int64, error) {
			if i == 99 {
				panic("leaf panicked")
			}
			return int64(i), nil
		},
		func(x, y int64) (int64, error) { return x + y, nil },
	)
}

func TestRecursiveComputeInvalidRange(t *testing.T) {
	defer func() {
		err, _ := recover().(error)
		if !errors.Is(err, aprt.ErrIllegalArgument) {
			t.Errorf("got %v, expected an illegal argument panic", err)
		}
	}()
	_, _ = parallel.RecursiveCompute(withProcessors(4), 1, 0, identity, product)
}

func TestRecursiveComputeRangeEndingAtMaxInt(t *testing.T) {
	defer func() {
		err, _ := recover().(error)
		if !errors.Is(err, aprt.ErrIllegalArgument) {
			t.Errorf("got %v, expected an illegal argument panic", err)
		}
	}()
	_, _ = parallel.RecursiveCompute(withProcessors(4), math.MaxInt-8, math.MaxInt, identity, product)
}

func TestDo(t *testing.T) {
	for _, n := range []int{1, 4} {
		var results [5]int
		thunks := make([]func(context.Context) error, len(results))
		for i := range thunks {
			i := i
			thunks[i] = func(context.Context) error {
				results[i] = i * i
				if i == 3 {
					return fmt.Errorf("thunk %v", i)
				}
				return nil
			}
		}
		err := parallel.Do(withProcessors(n), thunks...)
		if err == nil || err.Error() != "thunk 3" {
			t.Errorf("got %v, expected thunk 3", err)
		}
		if results != [5]int{0, 1, 4, 9, 16} {
			t.Errorf("got %v", results)
		}
	}
}

func TestRange(t *testing.T) {
	ctx := withProcessors(3)
	seen := make([]int32, 100)
	err := parallel.Range(ctx, 0, len(seen), func(_ context.Context, low, high int) error {
		for i := low; i < high; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range seen {
		if v != 1 {
			t.Fatalf("index %v visited %v times", i, v)
		}
	}
}
