package internal

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
)

// ComputeNofBatches divides the size of the range (high - low) by the
// number of batches derived from processors. Each processor gets two
// batches to absorb some load imbalance. The result never exceeds the size
// of the range, and is 1 for an empty range.
func ComputeNofBatches(low, high, processors int) (batches int) {
	switch size := high - low; {
	case size > 0:
		if processors < 1 {
			panic(fmt.Sprintf("invalid number of processors: %v", processors))
		}
		batches = 2 * processors
		if batches > size {
			batches = size
		}
	case size == 0:
		batches = 1
	default:
		panic(fmt.Sprintf("invalid range: %v:%v", low, high))
	}
	return
}

type runtimeError struct{ error }

func (runtimeError) RuntimeError() {}

func (e runtimeError) Unwrap() error { return e.error }

type wrappedError struct {
	msg   string
	cause error
}

func (e wrappedError) Error() string { return e.msg }

func (e wrappedError) Unwrap() error { return e.cause }

// WrapPanic adds stack trace information to a recovered panic. Error values
// keep their identity for errors.Is and errors.As.
func WrapPanic(p interface{}) interface{} {
	if p != nil {
		s := fmt.Sprintf("%v\n%s\nrethrown at", p, debug.Stack())
		if err, isError := p.(error); isError {
			r := wrappedError{s, err}
			var rerr runtime.Error
			if errors.As(err, &rerr) {
				return runtimeError{r}
			}
			return r
		}
		return s
	}
	return nil
}
