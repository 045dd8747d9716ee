package projection

import (
	"fmt"
	"sync"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/metric"
)

type stepStatus struct {
	Status   message.StepStatus
	Manifest *message.Manifest
}

func newProjector(t *testing.T) *Projector[stepStatus] {
	t.Helper()
	p, err := NewProjector[stepStatus]()
	require.NoError(t, err)
	return p
}

func TestProjector_GetOrCreateIsUnique(t *testing.T) {
	p := newProjector(t)

	a := p.GetOrCreate("prod#build")
	b := p.GetOrCreate("prod#build")
	assert.Same(t, a, b)
	assert.Equal(t, PhaseUnset, a.Status.Get().Phase)
	assert.Equal(t, 0, a.Log.Len())
}

func TestProjector_GetOrCreateConcurrent(t *testing.T) {
	p := newProjector(t)

	var wg sync.WaitGroup
	entries := make([]*Entry[stepStatus], 32)
	for i := range entries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i] = p.GetOrCreate("k")
		}(i)
	}
	wg.Wait()

	for _, e := range entries {
		assert.Same(t, entries[0], e)
	}
	assert.Equal(t, 1, p.Len())
}

func TestProjector_EventCreatesEntryLazily(t *testing.T) {
	p := newProjector(t)

	p.OnEvent("prod#build", stepStatus{Status: message.StepPending})

	e, ok := p.Get("prod#build")
	require.True(t, ok)
	assert.Equal(t, Projection[stepStatus]{Phase: PhaseTransitional, Value: stepStatus{Status: message.StepPending}},
		e.Status.Get())
}

func TestProjector_ResolvedReplacesTransitional(t *testing.T) {
	p := newProjector(t)
	e := p.GetOrCreate("prod#build")

	var seen []Projection[stepStatus]
	e.Status.Subscribe(func(s Projection[stepStatus]) { seen = append(seen, s) })

	p.OnEvent("prod#build", stepStatus{Status: message.StepPending, Manifest: &message.Manifest{Fingerprint: "old"}})
	p.OnStatusResponse("prod#build", stepStatus{Status: message.StepOK})

	current := p.Current("prod#build")
	assert.Equal(t, PhaseResolved, current.Phase)
	assert.Equal(t, message.StepOK, current.Value.Status)
	// the transitional manifest is not carried over
	assert.Nil(t, current.Value.Manifest)
	assert.Len(t, seen, 3)
}

func TestProjector_Logs(t *testing.T) {
	p := newProjector(t)
	p.AppendLog("k", message.Message{ContextID: "c1"})
	p.AppendLog("k", message.Message{ContextID: "c2"})

	var got []string
	p.GetOrCreate("k").Log.Subscribe(func(m message.Message) { got = append(got, m.ContextID) })
	assert.Equal(t, []string{"c1", "c2"}, got)
}

func TestProjector_KeysInCreationOrder(t *testing.T) {
	p := newProjector(t)
	for i := 3; i > 0; i-- {
		p.GetOrCreate(fmt.Sprintf("k%d", i))
	}
	assert.Equal(t, []string{"k3", "k2", "k1"}, p.Keys())
	assert.Equal(t, PhaseUnset, p.Current("missing").Phase)
	_, ok := p.Get("missing")
	assert.False(t, ok)
}

func TestProjector_EmptyKeyDetached(t *testing.T) {
	p := newProjector(t)
	e := p.GetOrCreate("")
	require.NotNil(t, e)
	assert.Equal(t, 0, p.Len())
}

func TestProjector_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	entries := registry.CoreMetrics().TableEntries.WithLabelValues("project_steps")

	first, err := NewProjector[stepStatus](WithMetrics(registry, "project_steps"))
	require.NoError(t, err)
	second, err := NewProjector[stepStatus](WithMetrics(registry, "project_steps"))
	require.NoError(t, err, "projectors of one kind share their table")

	first.OnEvent("prod#build", stepStatus{Status: message.StepStatus("running")})
	first.AppendLog("prod#test", message.Message{ContextID: "t"})
	second.OnStatusResponse("prod#build", stepStatus{Status: message.StepStatus("OK")})
	assert.Equal(t, 3.0, promtest.ToFloat64(entries))

	first.Close()
	assert.Equal(t, 0, first.Len())
	assert.Equal(t, 1.0, promtest.ToFloat64(entries))
}
