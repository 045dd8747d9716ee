package health

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		checks []Status
		want   string
	}{
		{"empty", nil, StateHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy},
		{"degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StateDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StateUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("ywdash", tt.checks)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.want == StateHealthy, got.Healthy)
			assert.Len(t, got.Checks, len(tt.checks))
		})
	}
}

func TestFromError_Sanitizes(t *testing.T) {
	assert.True(t, FromError("feed", nil).IsHealthy())

	s := FromError("feed", errors.New("dial ws://localhost:2000/ws-logs failed; token=abc at 10.0.0.1"))
	require.True(t, s.IsUnhealthy())
	assert.NotContains(t, s.Message, "localhost")
	assert.NotContains(t, s.Message, "abc")
	assert.NotContains(t, s.Message, "10.0.0.1")
	assert.Contains(t, s.Message, "[URL]")
}

func TestStatus_WithDetailCopies(t *testing.T) {
	base := NewHealthy("feed", "").WithDetail("received", 1)
	next := base.WithDetail("received", 2)
	assert.Equal(t, 1, base.Details["received"])
	assert.Equal(t, 2, next.Details["received"])
}

func TestMonitor_ChecksRunOnReport(t *testing.T) {
	m := NewMonitor()
	var connected atomic.Bool

	m.Register("feed", func() Status {
		if connected.Load() {
			return NewHealthy("", "connected")
		}
		return NewDegraded("", "reconnecting")
	})
	m.Update("relay", NewHealthy("", "disabled"))

	report := m.Report("ywdash")
	assert.Equal(t, StateDegraded, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "feed", report.Checks[0].Component)
	assert.Equal(t, "relay", report.Checks[1].Component)

	connected.Store(true)
	assert.True(t, m.Report("ywdash").IsHealthy())

	s, ok := m.Get("feed")
	require.True(t, ok)
	assert.Equal(t, "connected", s.Message)
}

func TestMonitor_UpdateReplacesCheck(t *testing.T) {
	m := NewMonitor()
	m.Register("relay", func() Status { return NewUnhealthy("", "down") })
	m.Update("relay", NewHealthy("", "stopped"))

	assert.Equal(t, []string{"relay"}, m.Names())
	assert.True(t, m.Report("x").IsHealthy())

	m.Remove("relay")
	_, ok := m.Get("relay")
	assert.False(t, ok)
	assert.Empty(t, m.Names())
}
