package worker

import "errors"

// Sentinel errors for action scheduling
var (
	ErrPoolNotStarted     = errors.New("action pool not started")
	ErrPoolStopped        = errors.New("action pool stopped")
	ErrPoolAlreadyStarted = errors.New("action pool already started")
	ErrQueueFull          = errors.New("action backlog full")
	ErrNilTask            = errors.New("task has no run function")
	ErrStopTimeout        = errors.New("timeout waiting for running actions")
	ErrActionPanic        = errors.New("action panicked")
)
