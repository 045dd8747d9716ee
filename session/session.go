// Package session keeps the per-entity aggregates (one per opened project or
// package) in a keyed table. A session is built on first open and disposed
// on close.
package session

import (
	"log/slog"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/metric"
	"github.com/youwol/ywdash/pkg/cache"
)

// Session is a per-entity aggregate. Close must release every subscription
// the session owns.
type Session interface {
	Close()
}

// Factory builds the session of an entity id.
type Factory[S Session] func(id string) (S, error)

// TabRegistry tracks the screens opened for entities. Closing a session
// unregisters its screen.
type TabRegistry interface {
	Unregister(kind, id string)
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	metrics  *metric.Metrics
	tabs     TabRegistry
	registry *metric.MetricsRegistry
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records the open session count and exports the table
// statistics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) {
		o.registry = registry
		o.metrics = registry.CoreMetrics()
	}
}

// WithTabRegistry sets the screen registry notified on close.
func WithTabRegistry(tabs TabRegistry) Option {
	return func(o *options) { o.tabs = tabs }
}

// Cache maps entity ids to live sessions.
type Cache[S Session] struct {
	kind     string
	factory  Factory[S]
	sessions cache.Cache[S]
	tabs     TabRegistry
	logger   *slog.Logger
	metrics  *metric.Metrics
}

// New creates an empty session table for entities of the given kind.
func New[S Session](kind string, factory Factory[S], opts ...Option) (*Cache[S], error) {
	if factory == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "session", "New", "validate factory")
	}
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	c := &Cache[S]{
		kind:    kind,
		factory: factory,
		tabs:    o.tabs,
		logger:  o.logger.With("sessions", kind),
		metrics: o.metrics,
	}
	sessions, err := cache.New[S](
		cache.WithMetrics[S](o.registry, kind+"_sessions"),
		cache.WithEvictionCallback[S](func(id string, s S) {
			s.Close()
			c.logger.Debug("Session disposed", "id", id)
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "session", "New", "create session table")
	}
	c.sessions = sessions
	return c, nil
}

// Open returns the live session of id, building it if none exists.
// Opening an id twice returns the same session.
func (c *Cache[S]) Open(id string) (S, error) {
	s, created, err := c.sessions.GetOrCreate(id, func() (S, error) {
		return c.factory(id)
	})
	if err != nil {
		var zero S
		return zero, errors.Wrap(err, "session", "Open", "build "+c.kind+" session")
	}
	if created {
		c.logger.Info("Session opened", "id", id)
		c.metrics.RecordSessions(c.kind, c.sessions.Size())
	}
	return s, nil
}

// Get returns the live session of id.
func (c *Cache[S]) Get(id string) (S, bool) {
	return c.sessions.Get(id)
}

// Lookup is Get returning ErrSessionNotFound when id has no session.
func (c *Cache[S]) Lookup(id string) (S, error) {
	s, ok := c.sessions.Get(id)
	if !ok {
		return s, errors.WrapInvalid(errors.ErrSessionNotFound, "session", "Lookup", "find "+c.kind+" "+id)
	}
	return s, nil
}

// Close disposes the session of id and unregisters its screen. Closing an
// unknown id only unregisters the screen.
func (c *Cache[S]) Close(id string) bool {
	existed, _ := c.sessions.Delete(id)
	if c.tabs != nil {
		c.tabs.Unregister(c.kind, id)
	}
	if existed {
		c.logger.Info("Session closed", "id", id)
		c.metrics.RecordSessions(c.kind, c.sessions.Size())
	}
	return existed
}

// IDs returns the ids of live sessions in opening order.
func (c *Cache[S]) IDs() []string {
	return c.sessions.Keys()
}

// Len returns the number of live sessions.
func (c *Cache[S]) Len() int {
	return c.sessions.Size()
}

// CloseAll disposes every session.
func (c *Cache[S]) CloseAll() {
	_ = c.sessions.Clear()
	c.metrics.RecordSessions(c.kind, 0)
}
