package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the metrics of the event-aggregation core.
// Every Record method is safe to call on a nil *Metrics.
type Metrics struct {
	MessagesReceived   *prometheus.CounterVec
	MessagesRouted     *prometheus.CounterVec
	RouterStreams      *prometheus.GaugeVec
	OperationNodes     *prometheus.CounterVec
	SessionsOpen       *prometheus.GaugeVec
	QueueSize          prometheus.Gauge
	ActionsTotal       *prometheus.CounterVec
	ActionDuration     *prometheus.HistogramVec
	ActionBacklog      prometheus.Gauge
	TableOps           *prometheus.CounterVec
	TableEntries       *prometheus.GaugeVec
	RequestsTotal      *prometheus.CounterVec
	TransportConnected prometheus.Gauge
	Reconnects         prometheus.Counter
	RelayPublished     *prometheus.CounterVec
}

// NewMetrics creates the core metrics
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ywdash",
				Subsystem: "transport",
				Name:      "messages_received_total",
				Help:      "Messages received from the daemon websocket channels",
			},
			[]string{"channel"},
		),

		MessagesRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ywdash",
				Subsystem: "router",
				Name:      "messages_routed_total",
				Help:      "Messages routed, by attachment (parent or root fallback)",
			},
			[]string{"router", "attachment"},
		),

		RouterStreams: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ywdash",
				Subsystem: "router",
				Name:      "streams",
				Help:      "Number of per-context streams in a router table",
			},
			[]string{"router"},
		),

		OperationNodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ywdash",
				Subsystem: "optree",
				Name:      "node_transitions_total",
				Help:      "Operation node transitions (materialized, success, error)",
			},
			[]string{"transition"},
		),

		SessionsOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ywdash",
				Subsystem: "session",
				Name:      "open",
				Help:      "Open entity sessions by kind",
			},
			[]string{"kind"},
		),

		QueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ywdash",
				Subsystem: "queue",
				Name:      "download_entries",
				Help:      "Entries in the download queue",
			},
		),

		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ywdash",
				Subsystem: "actions",
				Name:      "total",
				Help:      "User-triggered actions by name and outcome",
			},
			[]string{"action", "outcome"},
		),

		ActionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ywdash",
				Subsystem: "actions",
				Name:      "duration_seconds",
				Help:      "Time spent running an action, by name",
				Buckets:   []float64{0.01, 0.05, 0.25, 1, 5, 15, 60},
			},
			[]string{"action"},
		),

		ActionBacklog: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ywdash",
				Subsystem: "actions",
				Name:      "backlog",
				Help:      "Actions waiting for a worker",
			},
		),

		TableOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ywdash",
				Subsystem: "table",
				Name:      "ops_total",
				Help:      "Keyed table operations (hit, miss, create, set, delete, clear) by table",
			},
			[]string{"table", "op"},
		),

		TableEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ywdash",
				Subsystem: "table",
				Name:      "entries",
				Help:      "Live entries summed over every table sharing a name",
			},
			[]string{"table"},
		),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ywdash",
				Subsystem: "transport",
				Name:      "requests_total",
				Help:      "HTTP requests sent to the daemon by method and status class",
			},
			[]string{"method", "status"},
		),

		TransportConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ywdash",
				Subsystem: "transport",
				Name:      "connected",
				Help:      "Open websocket channels to the daemon",
			},
		),

		Reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ywdash",
				Subsystem: "transport",
				Name:      "reconnects_total",
				Help:      "Websocket reconnection attempts",
			},
		),

		RelayPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ywdash",
				Subsystem: "relay",
				Name:      "published_total",
				Help:      "Messages republished on NATS by kind",
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesReceived,
		m.MessagesRouted,
		m.RouterStreams,
		m.OperationNodes,
		m.SessionsOpen,
		m.QueueSize,
		m.ActionsTotal,
		m.ActionDuration,
		m.ActionBacklog,
		m.TableOps,
		m.TableEntries,
		m.RequestsTotal,
		m.TransportConnected,
		m.Reconnects,
		m.RelayPublished,
	}
}

// RecordMessageReceived increments the received counter for a channel
func (m *Metrics) RecordMessageReceived(channel string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(channel).Inc()
}

// RecordRouted records one routed message and the current table size
func (m *Metrics) RecordRouted(router string, rootFallback bool, streams int) {
	if m == nil {
		return
	}
	attachment := "parent"
	if rootFallback {
		attachment = "root"
	}
	m.MessagesRouted.WithLabelValues(router, attachment).Inc()
	m.RouterStreams.WithLabelValues(router).Set(float64(streams))
}

// RecordNodeTransition counts an operation node transition
func (m *Metrics) RecordNodeTransition(transition string) {
	if m == nil {
		return
	}
	m.OperationNodes.WithLabelValues(transition).Inc()
}

// RecordSessions sets the number of open sessions of a kind
func (m *Metrics) RecordSessions(kind string, count int) {
	if m == nil {
		return
	}
	m.SessionsOpen.WithLabelValues(kind).Set(float64(count))
}

// RecordQueueSize sets the download queue size
func (m *Metrics) RecordQueueSize(size int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(size))
}

// RecordActionOutcome counts an action outcome. Rejected actions never ran
// and carry no duration.
func (m *Metrics) RecordActionOutcome(action, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(action, outcome).Inc()
	if elapsed > 0 {
		m.ActionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
	}
}

// RecordActionBacklog sets the number of queued actions
func (m *Metrics) RecordActionBacklog(n int) {
	if m == nil {
		return
	}
	m.ActionBacklog.Set(float64(n))
}

// RecordTableOp counts one operation on a keyed table
func (m *Metrics) RecordTableOp(table, op string) {
	if m == nil {
		return
	}
	m.TableOps.WithLabelValues(table, op).Inc()
}

// AddTableEntries moves the live entry count of a table by delta
func (m *Metrics) AddTableEntries(table string, delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.TableEntries.WithLabelValues(table).Add(float64(delta))
}

// RecordRequest counts an HTTP request to the daemon
func (m *Metrics) RecordRequest(method, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, status).Inc()
}

// RecordConnected adjusts the number of open websocket channels
func (m *Metrics) RecordConnected(delta float64) {
	if m == nil {
		return
	}
	m.TransportConnected.Add(delta)
}

// RecordReconnect increments the reconnect counter
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// RecordRelayPublished counts a message republished on NATS
func (m *Metrics) RecordRelayPublished(kind string) {
	if m == nil {
		return
	}
	m.RelayPublished.WithLabelValues(kind).Inc()
}
