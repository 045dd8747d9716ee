package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/youwol/ywdash/metric"
)

type bufferMetrics struct {
	writes      prometheus.Counter
	reads       prometheus.Counter
	blocks      prometheus.Counter
	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, prefix string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"component": prefix}
	m := &bufferMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ywdash", Subsystem: "inbox", Name: "writes_total",
			ConstLabels: labels, Help: "Items written to the inbox",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ywdash", Subsystem: "inbox", Name: "reads_total",
			ConstLabels: labels, Help: "Items read from the inbox",
		}),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ywdash", Subsystem: "inbox", Name: "blocked_writes_total",
			ConstLabels: labels, Help: "Writes that waited for space",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ywdash", Subsystem: "inbox", Name: "size",
			ConstLabels: labels, Help: "Items currently queued",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ywdash", Subsystem: "inbox", Name: "utilization",
			ConstLabels: labels, Help: "Inbox utilization (0.0 to 1.0)",
		}),
	}

	if err := registry.RegisterCounter(prefix, "inbox_writes", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "inbox_reads", m.reads); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "inbox_blocks", m.blocks); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "inbox_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "inbox_utilization", m.utilization); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordRead(n, size, capacity int) {
	m.reads.Add(float64(n))
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordBlock() {
	m.blocks.Inc()
}

func (m *bufferMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
