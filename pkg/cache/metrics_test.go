package cache

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youwol/ywdash/metric"
)

func tableOps(registry *metric.MetricsRegistry, table, op string) float64 {
	return testutil.ToFloat64(registry.CoreMetrics().TableOps.WithLabelValues(table, op))
}

func tableEntries(registry *metric.MetricsRegistry, table string) float64 {
	return testutil.ToFloat64(registry.CoreMetrics().TableEntries.WithLabelValues(table))
}

func TestTableMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c := newTestCache(t, WithMetrics[string](registry, "project_sessions"))

	_, _ = c.Set("p1", "v1")
	_, _ = c.Set("p1", "v1 again")
	_, _, _ = c.GetOrCreate("p2", func() (string, error) { return "v2", nil })
	_, _, _ = c.GetOrCreate("p2", func() (string, error) { return "unused", nil })
	c.Get("p1")
	c.Get("p3")
	_, _ = c.Delete("p2")

	tests := []struct {
		op   string
		want float64
	}{
		{opHit, 2},
		{opMiss, 2},
		{opSet, 2},
		{opCreate, 1},
		{opDelete, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tableOps(registry, "project_sessions", tt.op), tt.op)
	}
	assert.Equal(t, 1.0, tableEntries(registry, "project_sessions"))

	require.NoError(t, c.Clear())
	assert.Equal(t, 1.0, tableOps(registry, "project_sessions", opClear))
	assert.Equal(t, 0.0, tableEntries(registry, "project_sessions"))
}

func TestTableMetrics_SharedTableAddsUp(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	first := newTestCache(t, WithMetrics[string](registry, "project_steps"))
	second := newTestCache(t, WithMetrics[string](registry, "project_steps"))

	_, _, _ = first.GetOrCreate("prod/build", func() (string, error) { return "a", nil })
	_, _, _ = first.GetOrCreate("prod/test", func() (string, error) { return "b", nil })
	_, _, _ = second.GetOrCreate("prod/build", func() (string, error) { return "c", nil })
	assert.Equal(t, 3.0, tableEntries(registry, "project_steps"))
	assert.Equal(t, 3.0, tableOps(registry, "project_steps", opCreate))

	var evicted []string
	closing := newTestCache(t,
		WithMetrics[string](registry, "project_steps"),
		WithEvictionCallback[string](func(key, _ string) { evicted = append(evicted, key) }))
	_, _ = closing.Set("dev/lint", "d")
	require.NoError(t, closing.Close())
	assert.Empty(t, evicted, "close skips eviction callbacks")
	assert.Equal(t, 0, closing.Size())

	require.NoError(t, first.Close())
	assert.Equal(t, 1.0, tableEntries(registry, "project_steps"))
}

func TestTableMetrics_Disabled(t *testing.T) {
	c := newTestCache(t, WithMetrics[string](nil, "ignored"))
	assert.Nil(t, c.(*simpleCache[string]).metrics)

	registry := metric.NewMetricsRegistry()
	c = newTestCache(t, WithMetrics[string](registry, ""))
	assert.Nil(t, c.(*simpleCache[string]).metrics)

	// a nil table reporter is safe to use
	_, _ = c.Set("k", "v")
	c.Get("k")
	require.NoError(t, c.Clear())
}
