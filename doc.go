// Package aprt provides the concurrency and resource substrate that
// arbitrary-precision numeric kernels depend on. Transform kernels and
// series evaluation live elsewhere and only call the interfaces defined
// here.
//
// Aprt provides the following subpackages:
//
// aprt/execution provides the execution context: the number of processors
// and the executor that parallel work is submitted to, with a process-wide
// default and scoped overrides carried by context.Context values.
//
// aprt/parallel provides a parallel recursive reduce over an integer range
// that combines partial results strictly in index order, as well as simple
// fork/join helpers built on the same machinery.
//
// aprt/sequential provides sequential implementations of the functions from
// aprt/parallel. The parallel implementations fall back to them when only
// one processor is configured.
//
// aprt/number provides a minimal arbitrary-precision value model (radix,
// scale, precision) for scalar and complex values.
//
// aprt/precision provides the precision propagation and apportionment rules
// that composite numeric operations must honor.
//
// aprt/cache provides concurrent maps whose values or keys may be reclaimed
// by the garbage collector, a shutdown-guarded map decorator, and a
// memoizer built on them.
//
// aprt/pipe connects a producer running on its own goroutine to a blocking
// io.Reader on the caller's goroutine.
//
// aprt/metrics exposes Prometheus collectors for the packages above.
//
// The scheduler has been influenced to various extents by ideas from Cilk,
// Threading Building Blocks, and Java's java.util.concurrent package. See
// http://supertech.csail.mit.edu/papers/steal.pdf for some theoretical
// background.
package aprt
