// Package state holds what the domain states share: their collaborators and
// the label-driven dispatch of typed payloads off a router journal.
package state

import (
	"context"
	"log/slog"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/metric"
	"github.com/youwol/ywdash/pkg/reactive"
	"github.com/youwol/ywdash/pkg/worker"
	"github.com/youwol/ywdash/router"
	"github.com/youwol/ywdash/session"
	"github.com/youwol/ywdash/transport"
)

// Deps bundles the collaborators of a domain state. Router, Requester and
// Runner are required.
type Deps struct {
	Router    *router.Router
	Requester transport.Requester
	Runner    worker.Runner
	Payloads  *message.PayloadRegistry
	Logger    *slog.Logger
	Metrics   *metric.MetricsRegistry
	Tabs      session.TabRegistry
}

// WithDefaults validates d and fills the optional collaborators.
func (d Deps) WithDefaults(component string) (Deps, error) {
	switch {
	case d.Router == nil:
		return d, errors.WrapInvalid(errors.ErrMissingConfig, component, "New", "validate router")
	case d.Requester == nil:
		return d, errors.WrapInvalid(errors.ErrMissingConfig, component, "New", "validate requester")
	case d.Runner == nil:
		return d, errors.WrapInvalid(errors.ErrMissingConfig, component, "New", "validate runner")
	}
	if d.Payloads == nil {
		d.Payloads = message.DefaultRegistry()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger = d.Logger.With("component", component)
	return d, nil
}

// SessionOptions returns the session cache options derived from d.
func (d Deps) SessionOptions() []session.Option {
	opts := []session.Option{session.WithLogger(d.Logger)}
	if d.Metrics != nil {
		opts = append(opts, session.WithMetrics(d.Metrics))
	}
	if d.Tabs != nil {
		opts = append(opts, session.WithTabRegistry(d.Tabs))
	}
	return opts
}

// Submit schedules run on the runner as a named fire-and-forget action.
func (d Deps) Submit(name string, run func(ctx context.Context) error) error {
	if err := d.Runner.Submit(worker.NewTask(name, run)); err != nil {
		return errors.Wrap(err, "state", "Submit", "schedule "+name)
	}
	return nil
}

// Handlers maps a domain label to the function receiving its payload.
type Handlers map[message.Label]func(rt router.Routed, p message.Payload)

// Dispatch hands every journal message of r, past and future, that carries a
// handled label to its handler. Payloads that fail to decode are logged and
// skipped.
func Dispatch(r *router.Router, payloads *message.PayloadRegistry, logger *slog.Logger, handlers Handlers) reactive.Subscription {
	return r.Journal().Subscribe(func(rt router.Routed) {
		p, err := payloads.Decode(rt.Message)
		if err != nil {
			logger.Warn("Skipping malformed payload", "context_id", rt.ContextID, "error", err)
			return
		}
		if handle, ok := handlers[p.Label()]; ok {
			handle(rt, p)
		}
	})
}
