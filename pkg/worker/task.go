package worker

import (
	"context"

	"github.com/google/uuid"
)

// Task is a named fire-and-forget action.
type Task struct {
	ID   string
	Name string
	Run  func(ctx context.Context) error
}

// NewTask creates a task with a fresh id.
func NewTask(name string, run func(ctx context.Context) error) Task {
	return Task{ID: uuid.NewString(), Name: name, Run: run}
}

// Runner schedules tasks. Submit must not block on task execution unless
// the implementation is explicitly synchronous.
type Runner interface {
	Submit(task Task) error
}

// Inline runs tasks synchronously on the submitting goroutine.
// OnDone, when set, receives every task outcome.
type Inline struct {
	Ctx    context.Context
	OnDone func(task Task, err error)
}

// Submit runs the task before returning. Task failures are reported to
// OnDone, never returned, so callers behave as with an asynchronous runner.
func (r *Inline) Submit(task Task) error {
	ctx := r.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	err := task.Run(ctx)
	if r.OnDone != nil {
		r.OnDone(task, err)
	}
	return nil
}
