package health

import (
	"slices"
	"sync"
	"time"
)

// Check reports the current health of one component.
type Check func() Status

// Monitor tracks the health of named components. A component is either
// probed through a registered Check or pushed with Update.
type Monitor struct {
	mu       sync.RWMutex
	checks   map[string]Check
	statuses map[string]Status
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		checks:   make(map[string]Check),
		statuses: make(map[string]Status),
	}
}

// Register probes name with check on every Report.
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
	delete(m.statuses, name)
}

// Update records a pushed status for name.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
	delete(m.checks, name)
}

// Remove stops tracking name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checks, name)
	delete(m.statuses, name)
}

// Get returns the status of name, running its check if it has one.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	check, probed := m.checks[name]
	status, pushed := m.statuses[name]
	m.mu.RUnlock()

	if probed {
		return run(name, check), true
	}
	return status, pushed
}

// Names returns the tracked component names, sorted.
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.checks)+len(m.statuses))
	for name := range m.checks {
		names = append(names, name)
	}
	for name := range m.statuses {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Report runs every check and aggregates the results, ordered by name.
// Checks run outside the monitor lock.
func (m *Monitor) Report(system string) Status {
	m.mu.RLock()
	checks := make(map[string]Check, len(m.checks))
	for name, c := range m.checks {
		checks[name] = c
	}
	results := make([]Status, 0, len(m.checks)+len(m.statuses))
	for _, s := range m.statuses {
		results = append(results, s)
	}
	m.mu.RUnlock()

	for name, c := range checks {
		results = append(results, run(name, c))
	}
	slices.SortFunc(results, func(a, b Status) int {
		switch {
		case a.Component < b.Component:
			return -1
		case a.Component > b.Component:
			return 1
		}
		return 0
	})
	return Aggregate(system, results)
}

func run(name string, check Check) Status {
	s := check()
	s.Component = name
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	return s
}
