// Package worker runs fire-and-forget actions off the dispatch goroutine.
//
// Actions are user-triggered (run a step, submit downloads, check updates,
// execute a command). Their result comes back through the daemon feed, so
// the pool only records the outcome of each Task: it never retries and
// never hands an error back to the submitter. Inline runs the same tasks
// synchronously for deterministic tests.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/youwol/ywdash/metric"
)

// Outcome labels of a finished or refused action.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomePanic    = "panic"
	OutcomeCanceled = "canceled"
	OutcomeRejected = "rejected"
)

// Pool runs Tasks on a fixed set of workers. It implements Runner.
type Pool struct {
	workers   int
	queueSize int
	queue     chan Task
	wg        sync.WaitGroup

	logger  *slog.Logger
	metrics *metric.Metrics
	onDone  func(task Task, outcome string, err error)

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	running   atomic.Int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used for action outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records per-action outcomes, durations and the backlog into
// the core metrics of registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Pool) { p.metrics = registry.CoreMetrics() }
}

// WithOnDone sets a hook receiving every finished action.
func WithOnDone(fn func(task Task, outcome string, err error)) Option {
	return func(p *Pool) { p.onDone = fn }
}

// NewPool creates an action pool. Non-positive sizes fall back to 4
// workers and a backlog of 256 actions.
func NewPool(workers, queueSize int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	p := &Pool{
		workers:   workers,
		queueSize: queueSize,
		queue:     make(chan Task, queueSize),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit enqueues task without waiting for it. A full backlog rejects the
// action with ErrQueueFull.
func (p *Pool) Submit(task Task) error {
	if task.Run == nil {
		return ErrNilTask
	}

	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	switch {
	case !p.started:
		return ErrPoolNotStarted
	case p.stopped:
		return ErrPoolStopped
	}

	select {
	case p.queue <- task:
		p.submitted.Add(1)
		p.metrics.RecordActionBacklog(len(p.queue))
		return nil
	default:
		p.rejected.Add(1)
		p.metrics.RecordActionOutcome(task.Name, OutcomeRejected, 0)
		p.logger.Warn("Action rejected, backlog full", "action", task.Name, "action_id", task.ID)
		return ErrQueueFull
	}
}

// Start launches the workers. Actions run with ctx.
func (p *Pool) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(ctx)
	}
	p.started = true
	return nil
}

// Stop refuses new actions and waits up to timeout for the backlog to
// drain. Queued actions still run unless the start context is cancelled.
func (p *Pool) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	close(p.queue)
	p.stopped = true

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers   int   `json:"workers"`
	QueueSize int   `json:"queue_size"`
	Backlog   int   `json:"backlog"`
	Running   int64 `json:"running"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

// Saturated reports whether the next Submit would be rejected.
func (s Stats) Saturated() bool {
	return s.Backlog >= s.QueueSize
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		QueueSize: p.queueSize,
		Backlog:   len(p.queue),
		Running:   p.running.Load(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.metrics.RecordActionBacklog(len(p.queue))
			p.execute(ctx, task)
		}
	}
}

// execute runs one action. A panicking action is reported and the worker
// keeps serving.
func (p *Pool) execute(ctx context.Context, task Task) {
	p.running.Add(1)
	defer p.running.Add(-1)

	start := time.Now()
	err := runGuarded(ctx, task)
	elapsed := time.Since(start)

	outcome := classify(err)
	p.completed.Add(1)
	if err != nil {
		p.failed.Add(1)
	}
	p.metrics.RecordActionOutcome(task.Name, outcome, elapsed)

	logger := p.logger.With("action", task.Name, "action_id", task.ID, "outcome", outcome, "elapsed", elapsed)
	if err != nil {
		logger.Warn("Action failed", "error", err)
	} else {
		logger.Debug("Action done")
	}
	if p.onDone != nil {
		p.onDone(task, outcome, err)
	}
}

func runGuarded(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrActionPanic, task.Name, r)
		}
	}()
	return task.Run(ctx)
}

func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrActionPanic):
		return OutcomePanic
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
