// Package router demultiplexes the daemon message feed by correlation id.
//
// Every contextId gets its own unbounded replay stream, created the first
// time the id is seen. A routed message is published on its own stream and
// again on the stream of its effective parent, so a parent-level subscriber
// observes every message of its direct children. Messages whose parent is
// empty or not yet known attach to the synthetic root stream.
package router

import (
	"log/slog"
	"sync"

	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/metric"
	"github.com/youwol/ywdash/pkg/reactive"
)

// Routed is a message together with the parent it was attached to.
// Parent differs from ParentContextID when the root fallback applied.
type Routed struct {
	message.Message
	Parent string
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records routing metrics under the router name.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithName names the router in logs and metrics.
func WithName(name string) Option {
	return func(r *Router) {
		if name != "" {
			r.name = name
		}
	}
}

// Router owns the table of per-context streams. The table only grows.
type Router struct {
	name    string
	base    *slog.Logger
	logger  *slog.Logger
	metrics *metric.Metrics

	// routeMu serializes Route so every stream has a single publisher.
	routeMu sync.Mutex

	mu      sync.RWMutex
	streams map[string]*reactive.Replay[Routed]
	order   []string
	journal *reactive.Replay[Routed]
}

// New creates a router whose table holds only the root stream.
func New(opts ...Option) *Router {
	r := &Router{
		name:    "global",
		logger:  slog.Default(),
		streams: make(map[string]*reactive.Replay[Routed]),
		journal: reactive.NewReplay[Routed](),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.base = r.logger
	r.logger = r.logger.With("router", r.name)
	r.streams[message.RootID] = reactive.NewReplay[Routed]()
	r.order = append(r.order, message.RootID)
	return r
}

// Route attaches m to the table and publishes it. Both the own stream and
// the effective parent stream hold m before any subscriber is notified.
// Route never fails: unknown parents degrade to root attachment.
func (r *Router) Route(m message.Message) Routed {
	r.routeMu.Lock()
	defer r.routeMu.Unlock()

	r.mu.Lock()
	parent := m.ParentContextID
	if _, known := r.streams[parent]; parent == "" || !known {
		if parent != "" {
			r.logger.Debug("Unknown parent context, attaching to root",
				"context_id", m.ContextID, "parent_context_id", parent)
		}
		parent = message.RootID
	}
	own, exists := r.streams[m.ContextID]
	if !exists {
		own = reactive.NewReplay[Routed]()
		r.streams[m.ContextID] = own
		r.order = append(r.order, m.ContextID)
	}
	parentStream := r.streams[parent]
	size := len(r.streams)
	r.mu.Unlock()

	routed := Routed{Message: m, Parent: parent}
	deliverOwn := own.Push(routed)
	deliverParent := func() {}
	// a context naming itself as parent is delivered once
	if parentStream != own {
		deliverParent = parentStream.Push(routed)
	}
	deliverJournal := r.journal.Push(routed)

	r.metrics.RecordRouted(r.name, parent == message.RootID, size)

	deliverOwn()
	deliverParent()
	deliverJournal()
	return routed
}

// Stream returns the replay stream of a context id.
func (r *Router) Stream(contextID string) (*reactive.Replay[Routed], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[contextID]
	return s, ok
}

// Root returns the root stream.
func (r *Router) Root() *reactive.Replay[Routed] {
	s, _ := r.Stream(message.RootID)
	return s
}

// Journal returns the ordered log of every routed message.
func (r *Router) Journal() *reactive.Replay[Routed] {
	return r.journal
}

// Size returns the number of streams, root included.
func (r *Router) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// IDs returns the context ids in creation order, root first.
func (r *Router) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Name returns the router name.
func (r *Router) Name() string {
	return r.name
}

// Filtered creates a child router fed with every message of this router,
// past and future, that satisfies keep. The child resolves parents against
// its own table. The subscription stops the feed.
func (r *Router) Filtered(name string, keep func(message.Message) bool, opts ...Option) (*Router, reactive.Subscription) {
	childOpts := append([]Option{
		WithName(name),
		WithMetrics(r.metrics),
		WithLogger(r.base),
	}, opts...)
	child := New(childOpts...)
	sub := r.journal.Subscribe(func(rt Routed) {
		if keep(rt.Message) {
			child.Route(rt.Message)
		}
	})
	return child, sub
}

// AttributeEquals matches messages whose attribute key equals value.
func AttributeEquals(key, value string) func(message.Message) bool {
	return func(m message.Message) bool {
		return m.Attributes[key] == value
	}
}
