// Package buffer provides a bounded FIFO inbox that never drops items.
//
// Writers block while the inbox is full and readers block while it is
// empty; both honor context cancellation. The inbox sits between the
// websocket readers and the single dispatch goroutine, so back-pressure
// reaches the socket instead of losing daemon messages.
//
// Statistics are always collected. Prometheus metrics are optional and
// enabled with WithMetrics.
package buffer

import (
	"context"
	"sync"

	"github.com/youwol/ywdash/errors"
)

// Inbox is a thread-safe bounded FIFO queue with blocking semantics.
type Inbox[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	closed   bool
	notEmpty *sync.Cond
	notFull  *sync.Cond
	stats    *Statistics
	metrics  *bufferMetrics
}

// NewInbox creates an inbox holding at most capacity items.
// Capacity below one is raised to one.
func NewInbox[T any](capacity int, options ...Option) (*Inbox[T], error) {
	opts := applyOptions(options...)
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "NewInbox", "metrics registration")
		}
	}

	in := &Inbox[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
	}
	in.notEmpty = sync.NewCond(&in.mu)
	in.notFull = sync.NewCond(&in.mu)
	return in, nil
}

// Write appends an item, blocking while the inbox is full.
// Returns the context error on cancellation and ErrClosed once closed.
func (in *Inbox[T]) Write(ctx context.Context, item T) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.size == in.capacity && !in.closed {
		in.stats.Block()
		if in.metrics != nil {
			in.metrics.recordBlock()
		}
	}
	if err := in.wait(ctx, in.notFull, func() bool { return in.size < in.capacity }); err != nil {
		return errors.Wrap(err, "Inbox", "Write", "wait for space")
	}

	in.items[in.head] = item
	in.head = (in.head + 1) % in.capacity
	in.size++

	in.stats.Write()
	in.stats.UpdateSize(int64(in.size))
	if in.metrics != nil {
		in.metrics.recordWrite(in.size, in.capacity)
	}

	in.notEmpty.Signal()
	return nil
}

// Read removes the oldest item, blocking while the inbox is empty.
// Items still queued at Close are drained before ErrClosed is returned.
func (in *Inbox[T]) Read(ctx context.Context) (T, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	var zero T
	if err := in.wait(ctx, in.notEmpty, func() bool { return in.size > 0 }); err != nil {
		return zero, errors.Wrap(err, "Inbox", "Read", "wait for item")
	}
	return in.popLocked(1)[0], nil
}

// TryReadBatch removes up to max items without blocking.
func (in *Inbox[T]) TryReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.size == 0 {
		return nil
	}
	if max > in.size {
		max = in.size
	}
	return in.popLocked(max)
}

func (in *Inbox[T]) popLocked(n int) []T {
	var zero T
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = in.items[in.tail]
		in.items[in.tail] = zero
		in.tail = (in.tail + 1) % in.capacity
		in.size--
		in.stats.Read()
	}
	in.stats.UpdateSize(int64(in.size))
	if in.metrics != nil {
		in.metrics.recordRead(n, in.size, in.capacity)
	}
	in.notFull.Broadcast()
	return out
}

// wait blocks on cond until ready returns true, the inbox closes or ctx is
// done. Must be called with in.mu held.
func (in *Inbox[T]) wait(ctx context.Context, cond *sync.Cond, ready func() bool) error {
	if ready() {
		if in.closed && cond == in.notFull {
			return errors.ErrClosed
		}
		return nil
	}
	if in.closed {
		return errors.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			in.mu.Lock()
			cond.Broadcast()
			in.mu.Unlock()
		case <-done:
		}
	}()

	for !ready() {
		if in.closed {
			return errors.ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		cond.Wait()
	}
	if in.closed && cond == in.notFull {
		return errors.ErrClosed
	}
	return nil
}

// Size returns the number of queued items.
func (in *Inbox[T]) Size() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.size
}

// Capacity returns the maximum number of queued items.
func (in *Inbox[T]) Capacity() int {
	return in.capacity
}

// Stats returns inbox statistics.
func (in *Inbox[T]) Stats() *Statistics {
	return in.stats
}

// Close wakes every blocked reader and writer. Further writes fail;
// reads drain what is left.
func (in *Inbox[T]) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil
	}
	in.closed = true
	in.notEmpty.Broadcast()
	in.notFull.Broadcast()
	return nil
}
