package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/metric"
	"github.com/youwol/ywdash/pkg/buffer"
	"github.com/youwol/ywdash/pkg/retry"
)

// FeedConfig configures a Feed.
type FeedConfig struct {
	BaseURL          string
	Channels         []string
	HandshakeTimeout time.Duration
	Reconnect        retry.Config
	TLS              *tls.Config
}

// FeedStats is a point-in-time view of the feed counters.
type FeedStats struct {
	Connected    int   `json:"connected"`
	Received     int64 `json:"received"`
	DecodeErrors int64 `json:"decode_errors"`
	Reconnects   int64 `json:"reconnects"`
}

// Feed keeps one websocket connection per daemon channel and writes every
// decoded message into a shared inbox. Channels are merged in arrival order.
// Connections are re-established with exponential backoff until the feed
// stops or the reconnect attempts run out.
type Feed struct {
	cfg     FeedConfig
	dialer  *websocket.Dialer
	inbox   *buffer.Inbox[message.Message]
	logger  *slog.Logger
	metrics *metric.Metrics

	lifecycleMu sync.Mutex
	started     atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	connMu sync.Mutex
	conns  map[string]*websocket.Conn

	connected    atomic.Int32
	received     atomic.Int64
	decodeErrors atomic.Int64
	reconnects   atomic.Int64
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithFeedLogger sets the logger.
func WithFeedLogger(logger *slog.Logger) FeedOption {
	return func(f *Feed) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFeedMetrics records connection and message metrics.
func WithFeedMetrics(m *metric.Metrics) FeedOption {
	return func(f *Feed) { f.metrics = m }
}

// NewFeed creates a feed writing into inbox. It does not connect until Start.
func NewFeed(cfg FeedConfig, inbox *buffer.Inbox[message.Message], opts ...FeedOption) (*Feed, error) {
	if cfg.BaseURL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "feed", "NewFeed", "validate base url")
	}
	if inbox == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("inbox is required"), "feed", "NewFeed", "validate inbox")
	}
	if err := cfg.Reconnect.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "feed", "NewFeed", "validate reconnect config")
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = []string{ChannelLogs, ChannelData}
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 45 * time.Second
	}

	f := &Feed{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, TLSClientConfig: cfg.TLS},
		inbox:  inbox,
		logger: slog.Default(),
		conns:  make(map[string]*websocket.Conn),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "feed")
	return f, nil
}

// Start launches one connect loop per channel.
func (f *Feed) Start(ctx context.Context) error {
	f.lifecycleMu.Lock()
	defer f.lifecycleMu.Unlock()

	if f.started.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "feed", "Start", "check started state")
	}

	urls := make(map[string]string, len(f.cfg.Channels))
	for _, channel := range f.cfg.Channels {
		u, err := WebsocketURL(f.cfg.BaseURL, channel)
		if err != nil {
			return errors.WrapInvalid(err, "feed", "Start", "resolve channel url")
		}
		urls[channel] = u
	}

	feedCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	for channel, u := range urls {
		f.wg.Add(1)
		go f.connectLoop(feedCtx, channel, u)
	}

	f.started.Store(true)
	f.logger.Info("Feed started", "channels", f.cfg.Channels)
	return nil
}

// Stop closes every connection and waits for the loops to exit.
func (f *Feed) Stop(timeout time.Duration) error {
	f.lifecycleMu.Lock()
	defer f.lifecycleMu.Unlock()

	if !f.started.Load() {
		return nil
	}
	f.cancel()

	f.connMu.Lock()
	for _, conn := range f.conns {
		_ = conn.Close()
	}
	f.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"feed",
			"Stop",
			"wait for goroutines",
		)
	}

	f.started.Store(false)
	f.logger.Info("Feed stopped")
	return nil
}

// Stats returns the feed counters.
func (f *Feed) Stats() FeedStats {
	return FeedStats{
		Connected:    int(f.connected.Load()),
		Received:     f.received.Load(),
		DecodeErrors: f.decodeErrors.Load(),
		Reconnects:   f.reconnects.Load(),
	}
}

// Connected reports whether every channel currently has a live connection.
func (f *Feed) Connected() bool {
	return int(f.connected.Load()) == len(f.cfg.Channels)
}

func (f *Feed) connectLoop(ctx context.Context, channel, url string) {
	defer f.wg.Done()

	backoff := retry.NewBackoff(f.cfg.Reconnect)
	logger := f.logger.With("channel", channel)

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := f.dialer.DialContext(ctx, url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if backoff.Exhausted() {
				logger.Error("Giving up on daemon channel", "attempts", backoff.Attempts(), "error", err)
				return
			}
			delay := backoff.Next()
			logger.Debug("Daemon channel unavailable", "retry_in", delay, "error", err)
			if retry.Sleep(ctx, delay) != nil {
				return
			}
			continue
		}

		backoff.Reset()
		f.track(channel, conn)
		logger.Info("Connected to daemon channel", "url", url)

		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		f.readLoop(ctx, channel, conn)
		stop()
		_ = conn.Close()
		f.untrack(channel)

		if ctx.Err() != nil {
			return
		}
		f.reconnects.Add(1)
		f.metrics.RecordReconnect()
		logger.Warn("Daemon channel closed, reconnecting")
	}
}

func (f *Feed) readLoop(ctx context.Context, channel string, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		m, err := message.Decode(data)
		if err != nil {
			f.decodeErrors.Add(1)
			f.logger.Debug("Dropping undecodable frame", "channel", channel, "error", err)
			continue
		}

		f.received.Add(1)
		f.metrics.RecordMessageReceived(channel)
		if err := f.inbox.Write(ctx, m); err != nil {
			return
		}
	}
}

func (f *Feed) track(channel string, conn *websocket.Conn) {
	f.connMu.Lock()
	f.conns[channel] = conn
	f.connMu.Unlock()
	f.connected.Add(1)
	f.metrics.RecordConnected(1)
}

func (f *Feed) untrack(channel string) {
	f.connMu.Lock()
	delete(f.conns, channel)
	f.connMu.Unlock()
	f.connected.Add(-1)
	f.metrics.RecordConnected(-1)
}
