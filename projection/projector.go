// Package projection folds per-key event streams into replaceable status
// values and merges ordered row sources into derived tables.
package projection

import (
	"log/slog"

	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/metric"
	"github.com/youwol/ywdash/pkg/cache"
	"github.com/youwol/ywdash/pkg/reactive"
)

// Phase tells how a projected value was produced.
type Phase string

// Projection phases.
const (
	PhaseUnset        Phase = "unset"
	PhaseTransitional Phase = "transitional"
	PhaseResolved     Phase = "resolved"
)

// Projection is the current status of one key. Every update replaces it
// wholesale.
type Projection[S any] struct {
	Phase Phase `json:"phase"`
	Value S     `json:"value"`
}

// Entry is the unique (status, log) pair of one key.
type Entry[S any] struct {
	Key    string
	Status *reactive.Value[Projection[S]]
	Log    *reactive.Replay[message.Message]
}

// Option configures a Projector.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	table    string
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics reports the entries under table. Projectors of one kind,
// one per open session, share the table name.
func WithMetrics(registry *metric.MetricsRegistry, table string) Option {
	return func(o *options) {
		o.registry = registry
		o.table = table
	}
}

// Projector holds one Entry per key, created lazily on first use from
// either a view lookup or an incoming event.
type Projector[S any] struct {
	entries cache.Cache[*Entry[S]]
	logger  *slog.Logger
}

// NewProjector creates an empty projector.
func NewProjector[S any](opts ...Option) (*Projector[S], error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	entries, err := cache.New[*Entry[S]](cache.WithMetrics[*Entry[S]](o.registry, o.table))
	if err != nil {
		return nil, err
	}
	return &Projector[S]{entries: entries, logger: o.logger}, nil
}

// GetOrCreate returns the entry for key, creating it if needed. At most one
// entry is ever created per key.
func (p *Projector[S]) GetOrCreate(key string) *Entry[S] {
	e, _, err := p.entries.GetOrCreate(key, func() (*Entry[S], error) {
		return &Entry[S]{
			Key:    key,
			Status: reactive.NewValue(Projection[S]{Phase: PhaseUnset}),
			Log:    reactive.NewReplay[message.Message](),
		}, nil
	})
	if err != nil {
		// only an empty key can fail; hand back a detached entry
		p.logger.Warn("Projection entry rejected", "key", key, "error", err)
		return &Entry[S]{
			Key:    key,
			Status: reactive.NewValue(Projection[S]{Phase: PhaseUnset}),
			Log:    reactive.NewReplay[message.Message](),
		}
	}
	return e
}

// Get returns the entry for key if it exists.
func (p *Projector[S]) Get(key string) (*Entry[S], bool) {
	return p.entries.Get(key)
}

// OnEvent pushes a transitional status for key.
func (p *Projector[S]) OnEvent(key string, status S) {
	p.GetOrCreate(key).Status.Set(Projection[S]{Phase: PhaseTransitional, Value: status})
}

// OnStatusResponse pushes a resolved status for key, replacing whatever was
// there.
func (p *Projector[S]) OnStatusResponse(key string, status S) {
	p.GetOrCreate(key).Status.Set(Projection[S]{Phase: PhaseResolved, Value: status})
}

// AppendLog records a message in the log of key.
func (p *Projector[S]) AppendLog(key string, m message.Message) {
	p.GetOrCreate(key).Log.Publish(m)
}

// Current returns the current projection of key without creating it.
func (p *Projector[S]) Current(key string) Projection[S] {
	if e, ok := p.entries.Get(key); ok {
		return e.Status.Get()
	}
	return Projection[S]{Phase: PhaseUnset}
}

// Keys returns the tracked keys in creation order.
func (p *Projector[S]) Keys() []string {
	return p.entries.Keys()
}

// Len returns the number of tracked keys.
func (p *Projector[S]) Len() int {
	return p.entries.Size()
}

// Close drops every entry. Subscribers keep the values they hold.
func (p *Projector[S]) Close() {
	_ = p.entries.Close()
}
