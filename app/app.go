// Package app wires ywdash together: the daemon transport, the global
// router fed by a single dispatch loop, the action pool, the three domain
// states, and the optional relay and gateway.
//
// Everything is owned by one App value and passed down by reference; there
// is no package-level state.
package app

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/youwol/ywdash/config"
	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/gateway"
	"github.com/youwol/ywdash/health"
	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/metric"
	"github.com/youwol/ywdash/pkg/buffer"
	"github.com/youwol/ywdash/pkg/tlsutil"
	"github.com/youwol/ywdash/pkg/worker"
	"github.com/youwol/ywdash/relay"
	"github.com/youwol/ywdash/router"
	"github.com/youwol/ywdash/state"
	"github.com/youwol/ywdash/state/cdn"
	"github.com/youwol/ywdash/state/environment"
	"github.com/youwol/ywdash/state/projects"
	"github.com/youwol/ywdash/transport"
)

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRequester replaces the HTTP client used for daemon requests.
func WithRequester(r transport.Requester) Option {
	return func(a *App) { a.requester = r }
}

// WithRelayPublisher relays on pub instead of dialing cfg.Relay.URL.
func WithRelayPublisher(pub relay.Publisher) Option {
	return func(a *App) { a.relayPub = pub }
}

// App is the ywdash application context.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	Metrics     *metric.MetricsRegistry
	Router      *router.Router
	Inbox       *buffer.Inbox[message.Message]
	Feed        *transport.Feed
	Actions     *worker.Pool
	Projects    *projects.State
	Cdn         *cdn.State
	Environment *environment.State
	Health      *health.Monitor
	Relay       *relay.Relay
	Gateway     *gateway.Server

	requester   transport.Requester
	relayPub    relay.Publisher
	relayClient *relay.Client

	mu      sync.Mutex
	running bool
	closed  bool
}

// New builds the application from cfg. Nothing runs until Run.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "app", "New", "check config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "app")

	if cfg.Metrics.Enabled {
		a.Metrics = metric.NewMetricsRegistry()
	}
	core := a.Metrics.CoreMetrics()

	a.Router = router.New(router.WithLogger(a.logger), router.WithMetrics(core), router.WithName("global"))

	daemonTLS, err := tlsutil.LoadClientTLSConfig(cfg.Daemon.TLS)
	if err != nil {
		return nil, err
	}
	if a.requester == nil {
		client, err := transport.NewHTTPClient(transport.ClientConfig{
			BaseURL:        cfg.Daemon.URL,
			RequestTimeout: cfg.Daemon.RequestTimeout,
			RateLimit:      cfg.Daemon.RateLimit,
			Burst:          cfg.Daemon.Burst,
			TLS:            daemonTLS,
		}, transport.WithClientLogger(a.logger), transport.WithClientMetrics(core))
		if err != nil {
			return nil, err
		}
		a.requester = client
	}

	var inboxOpts []buffer.Option
	if a.Metrics != nil {
		inboxOpts = append(inboxOpts, buffer.WithMetrics(a.Metrics, "inbox"))
	}
	inbox, err := buffer.NewInbox[message.Message](cfg.Inbox.Capacity, inboxOpts...)
	if err != nil {
		return nil, err
	}
	a.Inbox = inbox

	a.Feed, err = transport.NewFeed(transport.FeedConfig{
		BaseURL:          cfg.Daemon.URL,
		Channels:         cfg.Daemon.Channels,
		HandshakeTimeout: cfg.Daemon.HandshakeTimeout,
		Reconnect:        cfg.Reconnect.Retry(),
		TLS:              daemonTLS,
	}, a.Inbox, transport.WithFeedLogger(a.logger), transport.WithFeedMetrics(core))
	if err != nil {
		return nil, err
	}

	a.Actions = worker.NewPool(cfg.Actions.Workers, cfg.Actions.QueueSize,
		worker.WithLogger(a.logger.With("component", "actions")),
		worker.WithMetrics(a.Metrics))

	deps := state.Deps{
		Router:    a.Router,
		Requester: a.requester,
		Runner:    a.Actions,
		Logger:    a.logger,
		Metrics:   a.Metrics,
	}
	if a.Projects, err = projects.New(deps); err != nil {
		return nil, err
	}
	if a.Cdn, err = cdn.New(deps); err != nil {
		return nil, err
	}
	if a.Environment, err = environment.New(deps); err != nil {
		return nil, err
	}

	if cfg.Relay.Enabled && a.relayPub != nil {
		a.Relay = relay.New(a.relayPub, cfg.Relay.Prefix, relay.WithLogger(a.logger), relay.WithMetrics(core))
	}

	a.Health = health.NewMonitor()
	a.registerChecks()

	if cfg.Gateway.Enabled {
		gatewayTLS, err := tlsutil.LoadServerTLSConfig(cfg.Gateway.TLS)
		if err != nil {
			return nil, err
		}
		a.Gateway, err = gateway.New(cfg.Gateway.Listen, gateway.Deps{
			Projects:    a.Projects,
			Cdn:         a.Cdn,
			Environment: a.Environment,
			Health:      a.Health,
			Metrics:     a.Metrics,
			Logger:      a.logger,
			TLS:         gatewayTLS,
		})
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Run starts every component and pumps the daemon feed into the router
// until ctx is cancelled. Snapshots and the log backlog are fetched before
// the feed starts so they come first in the router.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running || a.closed {
		a.mu.Unlock()
		return errors.WrapFatal(errors.ErrAlreadyStarted, "app", "Run", "check state")
	}
	a.running = true
	a.mu.Unlock()

	if err := a.Actions.Start(ctx); err != nil {
		return errors.WrapFatal(err, "app", "Run", "start actions")
	}

	a.bootstrap(ctx)

	if a.cfg.Relay.Enabled {
		if err := a.startRelay(ctx); err != nil {
			return err
		}
	}
	if a.Gateway != nil {
		if err := a.Gateway.Start(ctx); err != nil {
			return err
		}
	}
	if err := a.Feed.Start(ctx); err != nil {
		return err
	}

	a.logger.Info("ywdash running", "daemon", a.cfg.Daemon.URL)
	return a.dispatch(ctx)
}

// bootstrap fetches the snapshots in parallel, then routes the backlog.
// A daemon that is not up yet is not an error: live messages and later
// refreshes fill the states in.
func (a *App) bootstrap(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	fetch := func(name string, refresh func(context.Context) error) {
		g.Go(func() error {
			if err := refresh(gctx); err != nil {
				a.logger.Warn("Snapshot fetch failed", "snapshot", name, "error", err)
			}
			return nil
		})
	}
	fetch("projects", a.Projects.Refresh)
	fetch("cdn", a.Cdn.Refresh)
	fetch("environment", a.Environment.Refresh)
	_ = g.Wait()

	if _, err := a.Environment.Backfill(ctx); err != nil {
		a.logger.Warn("Log backlog fetch failed", "error", err)
	}
}

func (a *App) startRelay(ctx context.Context) error {
	if a.Relay == nil {
		relayTLS, err := tlsutil.LoadClientTLSConfig(a.cfg.Relay.TLS)
		if err != nil {
			return err
		}
		client, err := relay.Dial(ctx, relay.ClientConfig{
			URL:           a.cfg.Relay.URL,
			Name:          "ywdash",
			Token:         a.cfg.Relay.Token,
			ReconnectWait: a.cfg.Relay.ReconnectWait,
			TLS:           relayTLS,
		}, a.logger)
		if err != nil {
			return err
		}
		a.relayClient = client
		a.Relay = relay.New(client, a.cfg.Relay.Prefix, relay.WithLogger(a.logger), relay.WithMetrics(a.Metrics.CoreMetrics()))
	}
	a.Relay.Attach(a.Router)
	return nil
}

// dispatch is the event loop: the only goroutine calling Route on the
// global router.
func (a *App) dispatch(ctx context.Context) error {
	for {
		m, err := a.Inbox.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, errors.ErrClosed) {
				return nil
			}
			return errors.WrapTransient(err, "app", "dispatch", "read inbox")
		}
		a.Router.Route(m)
	}
}

// Close stops every component and disposes every state. The feed stops
// first so no message is routed into disposed states.
func (a *App) Close(timeout time.Duration) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	var errs []error
	if err := a.Feed.Stop(timeout); err != nil {
		errs = append(errs, err)
	}
	_ = a.Inbox.Close()
	if a.Gateway != nil {
		if err := a.Gateway.Stop(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Actions.Stop(timeout); err != nil {
		errs = append(errs, errors.WrapTransient(err, "app", "Close", "stop actions"))
	}
	a.Projects.Close()
	a.Cdn.Close()
	a.Environment.Close()
	if a.Relay != nil {
		a.Relay.Close()
	}
	if a.relayClient != nil {
		if err := a.relayClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.logger.Info("ywdash stopped")
	return stderrors.Join(errs...)
}
