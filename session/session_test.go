package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/metric"
)

type fakeSession struct {
	id     string
	closed atomic.Bool
}

func (s *fakeSession) Close() { s.closed.Store(true) }

type tabs struct {
	mu      sync.Mutex
	removed []string
}

func (t *tabs) Unregister(kind, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removed = append(t.removed, kind+"/"+id)
}

func counting(builds *atomic.Int32) Factory[*fakeSession] {
	return func(id string) (*fakeSession, error) {
		builds.Add(1)
		return &fakeSession{id: id}, nil
	}
}

func TestOpen_Idempotent(t *testing.T) {
	var builds atomic.Int32
	c, err := New("projects", counting(&builds))
	require.NoError(t, err)

	a, err := c.Open("p1")
	require.NoError(t, err)
	b, err := c.Open("p1")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, int32(1), builds.Load())
	assert.Equal(t, []string{"p1"}, c.IDs())
}

func TestOpen_ConcurrentBuildsOnce(t *testing.T) {
	var builds atomic.Int32
	c, err := New("packages", counting(&builds))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Open("pkg")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), builds.Load())
}

func TestOpen_FactoryError(t *testing.T) {
	c, err := New("projects", func(id string) (*fakeSession, error) {
		return nil, fmt.Errorf("boom")
	})
	require.NoError(t, err)

	_, err = c.Open("p1")
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestClose_DisposesAndUnregisters(t *testing.T) {
	var builds atomic.Int32
	screens := &tabs{}
	c, err := New("projects", counting(&builds), WithTabRegistry(screens))
	require.NoError(t, err)

	s, err := c.Open("p1")
	require.NoError(t, err)

	assert.True(t, c.Close("p1"))
	assert.True(t, s.closed.Load())
	assert.False(t, c.Close("p1"))
	assert.Equal(t, []string{"projects/p1", "projects/p1"}, screens.removed)

	_, ok := c.Get("p1")
	assert.False(t, ok)

	reopened, err := c.Open("p1")
	require.NoError(t, err)
	assert.NotSame(t, s, reopened)
	assert.Equal(t, int32(2), builds.Load())
}

func TestLookup(t *testing.T) {
	var builds atomic.Int32
	c, err := New("projects", counting(&builds))
	require.NoError(t, err)

	_, err = c.Lookup("missing")
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)
	assert.True(t, errors.IsInvalid(err))

	_, err = c.Open("p1")
	require.NoError(t, err)
	s, err := c.Lookup("p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", s.id)
}

func TestCloseAll(t *testing.T) {
	var builds atomic.Int32
	c, err := New("projects", counting(&builds))
	require.NoError(t, err)

	a, _ := c.Open("a")
	b, _ := c.Open("b")
	c.CloseAll()

	assert.True(t, a.closed.Load())
	assert.True(t, b.closed.Load())
	assert.Equal(t, 0, c.Len())
}

func TestMetrics(t *testing.T) {
	var builds atomic.Int32
	registry := metric.NewMetricsRegistry()
	c, err := New("projects", counting(&builds), WithMetrics(registry))
	require.NoError(t, err)

	_, _ = c.Open("a")
	_, _ = c.Open("b")
	c.Close("a")

	gauge := registry.CoreMetrics().SessionsOpen.WithLabelValues("projects")
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))
	entries := registry.CoreMetrics().TableEntries.WithLabelValues("projects_sessions")
	assert.Equal(t, 1.0, testutil.ToFloat64(entries))

	c.CloseAll()
	assert.Equal(t, 0.0, testutil.ToFloat64(gauge))
	assert.Equal(t, 0.0, testutil.ToFloat64(entries))
}

func TestNew_RequiresFactory(t *testing.T) {
	_, err := New[*fakeSession]("projects", nil)
	assert.Error(t, err)
}
