// Package relay republishes the routed daemon messages on NATS so that other
// tools can follow the daemon activity without a websocket of their own.
//
// Every routed message goes to <prefix>.messages.<level>. Messages ending
// an operation also go to <prefix>.operations.done or
// <prefix>.operations.failed.
package relay

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/metric"
	"github.com/youwol/ywdash/pkg/reactive"
	"github.com/youwol/ywdash/router"
)

// Publisher sends raw payloads on a subject. *nats.Conn and *Client
// satisfy it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Transition is the payload published when an operation ends.
type Transition struct {
	ContextID       string  `json:"contextId"`
	ParentContextID string  `json:"parentContextId"`
	Status          string  `json:"status"`
	Timestamp       float64 `json:"timestamp,omitempty"`
}

// Stats counts relay outcomes.
type Stats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics counts publications.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// Relay forwards router traffic to a Publisher.
type Relay struct {
	pub     Publisher
	prefix  string
	logger  *slog.Logger
	metrics *metric.Metrics
	subs    reactive.Group

	published atomic.Int64
	failed    atomic.Int64
}

// New creates a relay publishing under prefix.
func New(pub Publisher, prefix string, opts ...Option) *Relay {
	if prefix == "" {
		prefix = "ywdash"
	}
	r := &Relay{pub: pub, prefix: strings.TrimSuffix(prefix, "."), logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach forwards every message of rt, including the ones already routed.
func (r *Relay) Attach(rt *router.Router) {
	r.subs.Add(rt.Journal().Subscribe(r.forward))
}

// Close detaches from every router.
func (r *Relay) Close() {
	r.subs.Unsubscribe()
}

// Stats returns the relay counters.
func (r *Relay) Stats() Stats {
	return Stats{Published: r.published.Load(), Failed: r.failed.Load()}
}

// MessageSubject is the subject a message is published on.
func (r *Relay) MessageSubject(m message.Message) string {
	return r.prefix + ".messages." + token(string(m.Level))
}

// OperationSubject is the subject of operation transitions with the given
// terminal status.
func (r *Relay) OperationSubject(status string) string {
	return r.prefix + ".operations." + status
}

func (r *Relay) forward(rt router.Routed) {
	r.publish("message", r.MessageSubject(rt.Message), rt.Message)

	var status string
	switch {
	case rt.Has(message.LabelDone):
		status = "done"
	case rt.Has(message.LabelFailed):
		status = "failed"
	default:
		return
	}
	r.publish("transition", r.OperationSubject(status), Transition{
		ContextID:       rt.ContextID,
		ParentContextID: rt.Parent,
		Status:          status,
		Timestamp:       rt.Timestamp,
	})
}

func (r *Relay) publish(kind, subject string, v any) {
	data, err := json.Marshal(v)
	if err == nil {
		err = r.pub.Publish(subject, data)
	}
	if err != nil {
		r.failed.Add(1)
		r.logger.Debug("Relay publish failed", "subject", subject, "error", err)
		return
	}
	r.published.Add(1)
	r.metrics.RecordRelayPublished(kind)
}

// token turns s into a single NATS subject token.
func token(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(c rune) rune {
		switch c {
		case '.', '*', '>', ' ':
			return '_'
		}
		return c
	}, s)
}
