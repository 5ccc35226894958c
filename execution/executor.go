package execution

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/exascience/aprt"
	"github.com/exascience/aprt/internal"
	"github.com/exascience/aprt/metrics"
)

/*
An Executor runs submitted tasks, possibly on other goroutines.

Execute must be safe to call from many goroutines at the same time, and
must not block indefinitely: an executor that cannot accept a task right
away runs it on the calling goroutine instead.
*/
type Executor interface {
	Execute(task func())
}

// GoExecutor runs every task in its own goroutine.
type GoExecutor struct{}

// Execute implements the Executor interface.
func (GoExecutor) Execute(task func()) {
	go task()
}

/*
A Pool is a cooperative executor with a fixed number of worker goroutines
and a bounded queue.

When the queue is full, Execute runs the task on the calling goroutine. The
parallel package additionally claims forked tasks back when it joins them
before they started, so that nested blocking joins never wait for a free
worker.

The zero Pool is not valid. A Pool must be closed to stop its workers.
*/
type Pool struct {
	tasks   chan func()
	wg      sync.WaitGroup
	mutex   sync.RWMutex
	closed  bool
	workers int
	running atomic.Int64
}

/*
NewPool starts a pool with n worker goroutines and a queue of queueSize
tasks. If queueSize is <= 0, 2*n is used instead. NewPool panics if n < 1.
*/
func NewPool(n, queueSize int) *Pool {
	if n < 1 {
		panic(fmt.Errorf("%w: invalid number of workers: %v", aprt.ErrIllegalArgument, n))
	}
	if queueSize <= 0 {
		queueSize = 2 * n
	}
	p := &Pool{
		tasks:   make(chan func(), queueSize),
		workers: n,
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	p.running.Add(1)
	defer func() {
		p.running.Add(-1)
		if r := recover(); r != nil {
			metrics.PoolTasks.WithLabelValues("panicked").Inc()
			internal.Logger().Error("pool task panicked",
				zap.Any("panic", internal.WrapPanic(r)))
		}
	}()
	task()
}

/*
Execute queues task for a worker. If the queue is full or the pool is
closed, task runs on the calling goroutine before Execute returns.
*/
func (p *Pool) Execute(task func()) {
	p.mutex.RLock()
	if !p.closed {
		select {
		case p.tasks <- task:
			p.mutex.RUnlock()
			metrics.PoolTasks.WithLabelValues("queued").Inc()
			return
		default:
		}
	}
	p.mutex.RUnlock()
	metrics.PoolTasks.WithLabelValues("caller_runs").Inc()
	p.run(task)
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

/*
Close stops accepting queued tasks, lets the workers drain the queue, and
waits for them to terminate. Close is idempotent.
*/
func (p *Pool) Close() {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mutex.Unlock()
	p.wg.Wait()
}

type poolKey struct{}

/*
WithinPool returns a copy of ctx that records that the code receiving it
runs as a task of p. The parallel package marks the tasks it forks onto a
pool this way.
*/
func WithinPool(ctx context.Context, p *Pool) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, poolKey{}, p)
}

// CurrentPool returns the pool that ctx was marked with by WithinPool, or
// nil.
func CurrentPool(ctx context.Context) *Pool {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(poolKey{}).(*Pool)
	return p
}

/*
ExecutorFor returns the executor that tasks forked under ctx must be
submitted to: the pool the caller already runs in if there is one, so that
nested submissions reuse it, otherwise the executor of the visible
execution context.
*/
func ExecutorFor(ctx context.Context) Executor {
	if p := CurrentPool(ctx); p != nil {
		return p
	}
	if e := GetContext(ctx).Executor(); e != nil {
		return e
	}
	return GoExecutor{}
}
