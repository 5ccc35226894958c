package execution

import (
	"context"
	"fmt"

	"github.com/exascience/aprt"
)

type frameKey struct{}

// A frame is one entry of the override stack. Frames are immutable, so a
// context.Context holding a frame can be shared freely between goroutines.
type frame struct {
	context *Context
	parent  *frame
}

func topFrame(ctx context.Context) *frame {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(frameKey{}).(*frame)
	return f
}

/*
GetContext returns the innermost execution context pushed onto ctx, or the
global context if there is none. A nil ctx is treated as
context.Background().
*/
func GetContext(ctx context.Context) *Context {
	if f := topFrame(ctx); f != nil {
		return f.context
	}
	return GlobalContext()
}

/*
SetThreadContext returns a copy of ctx with c pushed onto its override
stack. The override is visible only to code that receives the returned
context, which includes the tasks that the parallel package forks from it.
It panics if c is nil.
*/
func SetThreadContext(ctx context.Context, c *Context) context.Context {
	if c == nil {
		panic(fmt.Errorf("%w: nil execution context", aprt.ErrIllegalArgument))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, frameKey{}, &frame{c, topFrame(ctx)})
}

/*
RemoveThreadContext returns a copy of ctx with the innermost override
popped, so that the previously visible context becomes visible again. It
returns ctx and an error wrapping aprt.ErrNoSuchElement if ctx carries no
override.
*/
func RemoveThreadContext(ctx context.Context) (context.Context, error) {
	f := topFrame(ctx)
	if f == nil {
		return ctx, fmt.Errorf("remove thread context: %w", aprt.ErrNoSuchElement)
	}
	return context.WithValue(ctx, frameKey{}, f.parent), nil
}

/*
Scoped invokes fn with a context.Context on which c is pushed, and returns
the result of fn. Since the override only lives in the context.Context
passed to fn, the caller's view is unaffected on any kind of exit,
including panics.
*/
func Scoped(ctx context.Context, c *Context, fn func(ctx context.Context) error) error {
	return fn(SetThreadContext(ctx, c))
}
