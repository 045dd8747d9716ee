package cache

import (
	"github.com/youwol/ywdash/metric"
)

// Table operations reported under the op label.
const (
	opHit    = "hit"
	opMiss   = "miss"
	opCreate = "create"
	opSet    = "set"
	opDelete = "delete"
	opClear  = "clear"
)

// tableMetrics feeds one cache into the shared table vectors. The entry
// gauge only ever moves by deltas so that every cache registered under the
// same table contributes its own entries.
type tableMetrics struct {
	core  *metric.Metrics
	table string
}

func newTableMetrics(core *metric.Metrics, table string) *tableMetrics {
	if core == nil {
		return nil
	}
	return &tableMetrics{core: core, table: table}
}

func (m *tableMetrics) lookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.core.RecordTableOp(m.table, opHit)
	} else {
		m.core.RecordTableOp(m.table, opMiss)
	}
}

// write records op and the resulting change in entries.
func (m *tableMetrics) write(op string, delta int) {
	if m == nil {
		return
	}
	m.core.RecordTableOp(m.table, op)
	m.core.AddTableEntries(m.table, delta)
}

// release gives n entries back without counting an operation.
func (m *tableMetrics) release(n int) {
	if m == nil {
		return
	}
	m.core.AddTableEntries(m.table, -n)
}
