// Package execution provides the execution context that parallel numeric
// work runs under: the number of processors to split work for, and the
// executor that forked tasks are submitted to.
//
// There is one process-wide context. Code that needs different settings
// for a particular call chain pushes an override onto a context.Context
// with SetThreadContext, and every function that receives that
// context.Context, including tasks forked by the parallel package, sees the
// override. RemoveThreadContext pops it again, so overrides nest like a
// stack.
package execution

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/exascience/aprt"
)

/*
A Context bundles the settings that control parallelism.

A Context is safe for concurrent use. Contexts are shared by reference,
so changes to a Context are seen by every call chain that uses it. Use
Clone to get an independent copy before changing settings for a scoped
override.
*/
type Context struct {
	mutex              sync.RWMutex
	numberOfProcessors int
	executor           Executor
	attributes         map[string]interface{}
}

// An Option configures a Context created with New.
type Option func(*Context)

// WithNumberOfProcessors sets the number of processors. New panics if n < 1.
func WithNumberOfProcessors(n int) Option {
	return func(c *Context) {
		c.numberOfProcessors = checkProcessors(n)
	}
}

// WithExecutor sets the executor that forked tasks are submitted to.
func WithExecutor(e Executor) Option {
	return func(c *Context) {
		c.executor = e
	}
}

// WithAttribute sets an initial attribute.
func WithAttribute(name string, value interface{}) Option {
	return func(c *Context) {
		c.attributes[name] = value
	}
}

/*
New returns a Context. Without options it uses runtime.GOMAXPROCS(0)
processors and a GoExecutor.
*/
func New(opts ...Option) *Context {
	c := &Context{
		numberOfProcessors: runtime.GOMAXPROCS(0),
		executor:           GoExecutor{},
		attributes:         make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func checkProcessors(n int) int {
	if n < 1 {
		panic(fmt.Errorf("%w: invalid number of processors: %v", aprt.ErrIllegalArgument, n))
	}
	return n
}

// NumberOfProcessors returns the number of processors work is split for.
func (c *Context) NumberOfProcessors() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.numberOfProcessors
}

// SetNumberOfProcessors changes the number of processors. It panics if n < 1.
func (c *Context) SetNumberOfProcessors(n int) {
	checkProcessors(n)
	c.mutex.Lock()
	c.numberOfProcessors = n
	c.mutex.Unlock()
}

// Executor returns the executor that forked tasks are submitted to.
func (c *Context) Executor() Executor {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.executor
}

// SetExecutor changes the executor. A nil executor selects GoExecutor.
func (c *Context) SetExecutor(e Executor) {
	if e == nil {
		e = GoExecutor{}
	}
	c.mutex.Lock()
	c.executor = e
	c.mutex.Unlock()
}

/*
Attribute returns the attribute stored under name. Attributes are free-form
values that kernels use to pass settings such as block sizes or file name
prefixes through the execution context.
*/
func (c *Context) Attribute(name string) (value interface{}, ok bool) {
	c.mutex.RLock()
	value, ok = c.attributes[name]
	c.mutex.RUnlock()
	return
}

// SetAttribute stores value under name and returns the previous value.
func (c *Context) SetAttribute(name string, value interface{}) (previous interface{}, ok bool) {
	c.mutex.Lock()
	previous, ok = c.attributes[name]
	c.attributes[name] = value
	c.mutex.Unlock()
	return
}

// RemoveAttribute removes the attribute stored under name and returns it.
func (c *Context) RemoveAttribute(name string) (previous interface{}, ok bool) {
	c.mutex.Lock()
	previous, ok = c.attributes[name]
	delete(c.attributes, name)
	c.mutex.Unlock()
	return
}

// AttributeNames returns the sorted names of all attributes.
func (c *Context) AttributeNames() []string {
	c.mutex.RLock()
	names := make([]string, 0, len(c.attributes))
	for name := range c.attributes {
		names = append(names, name)
	}
	c.mutex.RUnlock()
	sort.Strings(names)
	return names
}

/*
Clone returns an independent copy of c. The attribute map is copied, the
attribute values and the executor are shared.
*/
func (c *Context) Clone() *Context {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	clone := &Context{
		numberOfProcessors: c.numberOfProcessors,
		executor:           c.executor,
		attributes:         make(map[string]interface{}, len(c.attributes)),
	}
	for name, value := range c.attributes {
		clone.attributes[name] = value
	}
	return clone
}

var global atomic.Pointer[Context]

func init() {
	global.Store(New())
}

// GlobalContext returns the process-wide default context.
func GlobalContext() *Context {
	return global.Load()
}

// SetGlobalContext replaces the process-wide default context. It panics if
// c is nil.
func SetGlobalContext(c *Context) {
	if c == nil {
		panic(fmt.Errorf("%w: nil execution context", aprt.ErrIllegalArgument))
	}
	global.Store(c)
}
