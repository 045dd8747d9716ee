package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/metric"
	"github.com/youwol/ywdash/transport"
)

type call struct {
	path string
	body []byte
}

type fakeRequester struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeRequester) Get(_ context.Context, path string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{path: path})
	return f.err
}

func (f *fakeRequester) Post(_ context.Context, path string, body, _ any) error {
	raw, _ := json.Marshal(body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{path: path, body: raw})
	return f.err
}

func TestInsert_Idempotent(t *testing.T) {
	q := New(&fakeRequester{})
	q.Insert("P", "1.0")
	q.Insert("P", "1.0")

	assert.Equal(t, []Entry{{Name: "P", Version: "1.0"}}, q.Entries())
}

func TestInsert_MovesExistingToBack(t *testing.T) {
	q := New(&fakeRequester{})
	q.Insert("A", "1")
	q.Insert("B", "1")
	q.Insert("A", "1")

	assert.Equal(t, []Entry{{"B", "1"}, {"A", "1"}}, q.Entries())
}

func TestRemove(t *testing.T) {
	q := New(&fakeRequester{})
	q.Insert("A", "1")
	q.Insert("A", "2")
	q.Remove("A", "1")
	q.Remove("missing", "0")

	assert.Equal(t, []Entry{{"A", "2"}}, q.Entries())
	assert.False(t, q.Contains("A", "1"))
	assert.True(t, q.Contains("A", "2"))
}

func TestToggle_Symmetry(t *testing.T) {
	q := New(&fakeRequester{})
	q.Insert("A", "1")
	q.Insert("B", "1")
	before := q.Entries()

	q.Toggle("C", "1")
	assert.True(t, q.Contains("C", "1"))
	q.Toggle("C", "1")
	assert.ElementsMatch(t, before, q.Entries())

	q.Toggle("A", "1")
	q.Toggle("A", "1")
	assert.ElementsMatch(t, before, q.Entries())
}

func TestToggle_ConcurrentPairsCancelOut(t *testing.T) {
	q := New(&fakeRequester{})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Toggle("P", "1.0")
		}()
	}
	wg.Wait()

	// an even number of toggles leaves the entry out
	assert.Empty(t, q.Entries())
}

func TestValue_NotifiesSubscribers(t *testing.T) {
	q := New(&fakeRequester{})
	var sizes []int
	sub := q.Value().Subscribe(func(e []Entry) { sizes = append(sizes, len(e)) })
	defer sub.Unsubscribe()

	q.Insert("A", "1")
	q.Insert("B", "1")
	q.Remove("A", "1")

	assert.Equal(t, []int{0, 1, 2, 1}, sizes)
}

func TestDrainAndSubmit(t *testing.T) {
	fake := &fakeRequester{}
	q := New(fake)
	q.Insert("A", "1")
	q.Insert("B", "2")

	require.NoError(t, q.DrainAndSubmit(context.Background()))

	require.Len(t, fake.calls, 1)
	assert.Equal(t, transport.PathCdnDownload, fake.calls[0].path)
	assert.JSONEq(t,
		`{"packages":[{"packageName":"A","version":"1"},{"packageName":"B","version":"2"}],"checkUpdate":true}`,
		string(fake.calls[0].body))
	assert.Len(t, q.Entries(), 2, "submitting leaves the queue unchanged")
}

func TestDrainAndSubmit_Empty(t *testing.T) {
	fake := &fakeRequester{}
	require.NoError(t, New(fake).DrainAndSubmit(context.Background()))
	assert.Empty(t, fake.calls)
}

func TestDrainAndSubmit_FailureKeepsQueue(t *testing.T) {
	fake := &fakeRequester{err: errors.FromStatus(500, "transport", "POST", transport.PathCdnDownload)}
	q := New(fake)
	q.Insert("A", "1")

	err := q.DrainAndSubmit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, []Entry{{"A", "1"}}, q.Entries())
}

func TestMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	q := New(&fakeRequester{}, WithMetrics(registry.CoreMetrics()))
	q.Insert("A", "1")
	q.Insert("B", "1")

	assert.Equal(t, 2.0, testutil.ToFloat64(registry.CoreMetrics().QueueSize))
}
