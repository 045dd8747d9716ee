package relay

import (
	"context"
	"crypto/tls"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/youwol/ywdash/errors"
)

// ConnectionStatus is the state of the NATS connection.
type ConnectionStatus int32

// Connection statuses.
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClientConfig configures the NATS connection.
type ClientConfig struct {
	URL           string
	Name          string
	Token         string
	MaxReconnects int // -1 reconnects forever
	ReconnectWait time.Duration
	Timeout       time.Duration
	DrainTimeout  time.Duration
	TLS           *tls.Config
}

// Client is a NATS connection that tracks its own status.
type Client struct {
	cfg    ClientConfig
	conn   *nats.Conn
	status atomic.Int32
	logger *slog.Logger
}

// Dial connects to the NATS server at cfg.URL.
func Dial(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "relay", "Dial", "validate url")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}

	c := &Client{cfg: cfg, logger: logger.With("component", "relay", "url", cfg.URL)}
	c.setStatus(StatusConnecting)

	done := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(cfg.URL, c.options()...)
		if err != nil {
			done <- err
			return
		}
		c.conn = conn
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			c.setStatus(StatusDisconnected)
			return nil, errors.WrapTransient(err, "relay", "Dial", "establish connection")
		}
	case <-ctx.Done():
		c.setStatus(StatusDisconnected)
		return nil, errors.WrapTransient(ctx.Err(), "relay", "Dial", "connection cancelled")
	}

	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS")
	return c, nil
}

func (c *Client) options() []nats.Option {
	maxReconnects := c.cfg.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = -1
	}
	opts := []nats.Option{
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.Timeout(c.cfg.Timeout),
		nats.DrainTimeout(c.cfg.DrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setStatus(StatusReconnecting)
			c.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.setStatus(StatusConnected)
			c.logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.setStatus(StatusClosed)
		}),
	}
	if c.cfg.Token != "" {
		opts = append(opts, nats.Token(c.cfg.Token))
	}
	if c.cfg.Name != "" {
		opts = append(opts, nats.Name(c.cfg.Name))
	}
	if c.cfg.TLS != nil {
		opts = append(opts, nats.Secure(c.cfg.TLS))
	}
	return opts
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(int32(s))
}

// Status returns the connection status.
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

// Healthy reports whether the connection is up.
func (c *Client) Healthy() bool {
	return c.Status() == StatusConnected
}

// Publish sends data on subject. Messages published while reconnecting are
// buffered by the NATS client.
func (c *Client) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "relay", "Publish", "publish "+subject)
	}
	return nil
}

// Close drains and closes the connection.
func (c *Client) Close() error {
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return errors.WrapTransient(err, "relay", "Close", "drain connection")
	}
	return nil
}
