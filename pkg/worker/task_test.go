package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask_UniqueIDs(t *testing.T) {
	a := NewTask("queue.submit", func(context.Context) error { return nil })
	b := NewTask("queue.submit", func(context.Context) error { return nil })

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "queue.submit", a.Name)
}

func TestInline_RunsSynchronously(t *testing.T) {
	var outcomes []error
	runner := &Inline{OnDone: func(_ Task, err error) { outcomes = append(outcomes, err) }}

	ran := false
	require.NoError(t, runner.Submit(NewTask("ok", func(context.Context) error {
		ran = true
		return nil
	})))
	assert.True(t, ran)

	boom := errors.New("boom")
	require.NoError(t, runner.Submit(NewTask("fail", func(context.Context) error { return boom })))

	require.Len(t, outcomes, 2)
	assert.NoError(t, outcomes[0])
	assert.ErrorIs(t, outcomes[1], boom)
}

func TestPool_RunsTasks(t *testing.T) {
	done := make(chan string, 1)
	pool := NewPool(1, 4)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(0)

	var _ Runner = pool
	var _ Runner = &Inline{}

	require.NoError(t, pool.Submit(NewTask("check-updates", func(context.Context) error {
		done <- "ran"
		return nil
	})))
	assert.Equal(t, "ran", <-done)
}
