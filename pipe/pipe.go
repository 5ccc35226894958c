/*
Package pipe connects a producer that writes a byte stream on a dedicated
goroutine to a consumer that reads it with blocking calls.

Data is passed through a bounded buffer of chunks, so a fast producer
blocks until the reader catches up. Failures are never turned into a silent
end of stream: if the producer fails or panics, or if either end
interrupts the pipe, reads fail with an error wrapping
aprt.ErrStreamFailure.
*/
package pipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/exascience/aprt"
	"github.com/exascience/aprt/internal"
	"github.com/exascience/aprt/metrics"
)

// DefaultBufferSize is the default number of chunks a pipe buffers.
const DefaultBufferSize = 16

var (
	// ErrReaderClosed is returned by reads on a closed Reader.
	ErrReaderClosed = errors.New("pipe: read from closed reader")

	// ErrWriterClosed is returned by writes on a closed Writer.
	ErrWriterClosed = errors.New("pipe: write to closed writer")

	// ErrBrokenPipe is returned by writes once the Reader is closed. It
	// matches both io.ErrClosedPipe and aprt.ErrStreamFailure.
	ErrBrokenPipe = fmt.Errorf("pipe: broken pipe: %w: %w", io.ErrClosedPipe, aprt.ErrStreamFailure)

	// ErrInterrupted is returned by both ends once the pipe has been
	// interrupted.
	ErrInterrupted = fmt.Errorf("pipe: interrupted: %w", aprt.ErrStreamFailure)
)

type options struct {
	bufferSize int
}

// An Option configures a pipe.
type Option func(*options)

// WithBufferSize sets the number of chunks the pipe buffers. With 0, each
// write waits for a read. It panics if n < 0.
func WithBufferSize(n int) Option {
	if n < 0 {
		panic(fmt.Errorf("%w: invalid pipe buffer size: %v", aprt.ErrIllegalArgument, n))
	}
	return func(o *options) { o.bufferSize = n }
}

type pipe struct {
	data       chan []byte
	readerDone chan struct{}
	poison     chan struct{}

	// writer side
	wrMu         sync.Mutex
	writerClosed bool
	failure      error

	// reader side
	rdMu         sync.Mutex
	pending      []byte
	readerClosed atomic.Bool

	poisonOnce sync.Once
	poisonErr  error

	cancel context.CancelCauseFunc
	stop   func() bool
}

// stopped reports whether the pipe itself ended the stream: the reader is
// closed or the pipe is interrupted.
func (p *pipe) stopped() bool {
	if p.readerClosed.Load() {
		return true
	}
	select {
	case <-p.poison:
		return true
	default:
		return false
	}
}

func (p *pipe) interrupt(cause error) {
	p.poisonOnce.Do(func() {
		if cause == nil {
			p.poisonErr = ErrInterrupted
		} else {
			p.poisonErr = fmt.Errorf("%w: %w", ErrInterrupted, cause)
		}
		close(p.poison)
		if p.cancel != nil {
			p.cancel(p.poisonErr)
		}
		metrics.PipeFailures.WithLabelValues("interrupted").Inc()
		internal.Logger().Debug("pipe interrupted", zap.NamedError("cause", cause))
	})
}

// A Reader is the consuming end of a pipe. A Reader must not be read from
// several goroutines at the same time.
type Reader struct {
	p *pipe
}

// A Writer is the producing end of a pipe. A Writer must not be written to
// from several goroutines at the same time.
type Writer struct {
	p *pipe
}

// New returns the two ends of a pipe that is not attached to a producer.
func New(opts ...Option) (*Reader, *Writer) {
	o := options{bufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	p := &pipe{
		data:       make(chan []byte, o.bufferSize),
		readerDone: make(chan struct{}),
		poison:     make(chan struct{}),
	}
	return &Reader{p}, &Writer{p}
}

/*
Open starts producer on a new goroutine and returns the Reader for the
stream it writes. Open does not wait for the producer.

When producer returns, the Writer is closed: with a nil error, the reader
drains the buffer and then sees io.EOF; with any other error, or if
producer panics, the reader drains the buffer and then fails with an error
wrapping aprt.ErrStreamFailure and the cause. An error is only dropped if
this pipe already ended the stream, because its reader was closed or it
was interrupted; the reader then sees that instead.

The context passed to producer is cancelled when the reader is closed or
the pipe is interrupted. Cancelling ctx interrupts the pipe. A nil ctx is
treated as context.Background().
*/
func Open(ctx context.Context, producer func(ctx context.Context, w *Writer) error, opts ...Option) *Reader {
	if ctx == nil {
		ctx = context.Background()
	}
	r, w := New(opts...)
	p := r.p
	pctx, cancel := context.WithCancelCause(ctx)
	p.cancel = cancel
	p.stop = context.AfterFunc(ctx, func() {
		p.interrupt(context.Cause(ctx))
	})
	go func() {
		defer cancel(nil)
		switch err := produce(pctx, producer, w); {
		case err == nil, p.stopped():
			_ = w.Close()
		default:
			internal.Logger().Warn("pipe producer failed", zap.Error(err))
			_ = w.CloseWithError(err)
		}
	}()
	return r
}

func produce(ctx context.Context, producer func(context.Context, *Writer) error, w *Writer) (err error) {
	defer func() {
		if p := recover(); p != nil {
			switch e := internal.WrapPanic(p).(type) {
			case error:
				err = fmt.Errorf("producer panicked: %w", e)
			default:
				err = fmt.Errorf("producer panicked: %v", e)
			}
		}
	}()
	return producer(ctx, w)
}

/*
Read reads the next bytes of the stream into b, in the order they were
written. It blocks until data is available, the writer is closed, or the
pipe is interrupted.

Once the writer is closed and the buffer is drained, Read returns io.EOF
on every call, or an error wrapping aprt.ErrStreamFailure if the writer was
closed with an error. Read fails with ErrInterrupted after an interruption
and with ErrReaderClosed after Close.
*/
func (r *Reader) Read(b []byte) (n int, err error) {
	p := r.p
	p.rdMu.Lock()
	defer p.rdMu.Unlock()
	if p.readerClosed.Load() {
		return 0, ErrReaderClosed
	}
	select {
	case <-p.poison:
		return 0, p.poisonErr
	default:
	}
	if len(b) == 0 {
		return 0, nil
	}
	if len(p.pending) == 0 {
		select {
		case chunk, ok := <-p.data:
			if !ok {
				if p.failure != nil {
					return 0, p.failure
				}
				return 0, io.EOF
			}
			p.pending = chunk
		case <-p.poison:
			return 0, p.poisonErr
		case <-p.readerDone:
			return 0, ErrReaderClosed
		}
	}
	n = copy(b, p.pending)
	p.pending = p.pending[n:]
	metrics.PipeBytes.WithLabelValues("read").Add(float64(n))
	return n, nil
}

// Close closes the reader. Writes that are blocked or follow fail with
// ErrBrokenPipe. Close is idempotent and always returns nil.
func (r *Reader) Close() error {
	p := r.p
	if p.readerClosed.CompareAndSwap(false, true) {
		close(p.readerDone)
		if p.cancel != nil {
			p.cancel(ErrBrokenPipe)
		}
		if p.stop != nil {
			p.stop()
		}
	}
	return nil
}

// Interrupt interrupts the pipe. Blocked and subsequent operations on both
// ends fail with ErrInterrupted.
func (r *Reader) Interrupt() {
	r.p.interrupt(nil)
}

/*
Write writes b to the pipe. It blocks while the buffer is full. The pipe
keeps its own copy of b.

Write fails with ErrWriterClosed after Close, with ErrBrokenPipe once
the reader is closed, and with ErrInterrupted after an interruption.
*/
func (w *Writer) Write(b []byte) (n int, err error) {
	p := w.p
	p.wrMu.Lock()
	defer p.wrMu.Unlock()
	if p.writerClosed {
		return 0, ErrWriterClosed
	}
	select {
	case <-p.poison:
		return 0, p.poisonErr
	case <-p.readerDone:
		return 0, ErrBrokenPipe
	default:
	}
	if len(b) == 0 {
		return 0, nil
	}
	select {
	case p.data <- bytes.Clone(b):
		metrics.PipeBytes.WithLabelValues("written").Add(float64(len(b)))
		return len(b), nil
	case <-p.poison:
		return 0, p.poisonErr
	case <-p.readerDone:
		return 0, ErrBrokenPipe
	}
}

// Close closes the writer. The reader sees io.EOF once it has drained the
// buffer. Close is idempotent and always returns nil.
func (w *Writer) Close() error {
	return w.CloseWithError(nil)
}

// CloseWithError closes the writer. If err is not nil, the reader fails
// with an error wrapping aprt.ErrStreamFailure and err once it has drained
// the buffer. Only the first close takes effect. CloseWithError always
// returns nil.
func (w *Writer) CloseWithError(err error) error {
	p := w.p
	p.wrMu.Lock()
	defer p.wrMu.Unlock()
	if p.writerClosed {
		return nil
	}
	p.writerClosed = true
	if err != nil {
		p.failure = fmt.Errorf("%w: %w", aprt.ErrStreamFailure, err)
		metrics.PipeFailures.WithLabelValues("producer").Inc()
	}
	close(p.data)
	return nil
}

// Interrupt interrupts the pipe. Blocked and subsequent operations on both
// ends fail with ErrInterrupted.
func (w *Writer) Interrupt() {
	w.p.interrupt(nil)
}
