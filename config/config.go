package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/pkg/retry"
	"github.com/youwol/ywdash/pkg/tlsutil"
	"github.com/youwol/ywdash/transport"
)

// Config is the complete ywdash configuration.
type Config struct {
	Daemon    DaemonConfig    `json:"daemon"`
	Reconnect ReconnectConfig `json:"reconnect"`
	Inbox     InboxConfig     `json:"inbox"`
	Actions   ActionsConfig   `json:"actions"`
	Gateway   GatewayConfig   `json:"gateway"`
	Metrics   MetricsConfig   `json:"metrics"`
	Relay     RelayConfig     `json:"relay"`
}

// DaemonConfig locates the py-youwol daemon.
type DaemonConfig struct {
	URL              string        `json:"url"`
	Channels         []string      `json:"channels,omitempty"`
	RequestTimeout   time.Duration `json:"request_timeout,omitempty"`
	HandshakeTimeout time.Duration `json:"handshake_timeout,omitempty"`
	RateLimit        float64       `json:"rate_limit,omitempty"` // requests per second, 0 = unlimited
	Burst            int           `json:"burst,omitempty"`
	// TLS applies to https daemons, e.g. one with a self-signed certificate.
	TLS tlsutil.ClientTLS `json:"tls,omitempty"`
}

// ReconnectConfig is the websocket reconnect backoff.
type ReconnectConfig struct {
	MaxAttempts  int           `json:"max_attempts,omitempty"` // 0 = forever
	InitialDelay time.Duration `json:"initial_delay,omitempty"`
	MaxDelay     time.Duration `json:"max_delay,omitempty"`
	Multiplier   float64       `json:"multiplier,omitempty"`
	Jitter       bool          `json:"jitter"`
}

// Retry converts the section into a backoff configuration.
func (r ReconnectConfig) Retry() retry.Config {
	return retry.Config{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.InitialDelay,
		MaxDelay:     r.MaxDelay,
		Multiplier:   r.Multiplier,
		AddJitter:    r.Jitter,
	}
}

// InboxConfig sizes the buffer between the websocket readers and the
// dispatch loop.
type InboxConfig struct {
	Capacity int `json:"capacity"`
}

// ActionsConfig sizes the action worker pool.
type ActionsConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queue_size"`
}

// GatewayConfig configures the HTTP API served to the view layer.
type GatewayConfig struct {
	Enabled bool              `json:"enabled"`
	Listen  string            `json:"listen"`
	TLS     tlsutil.ServerTLS `json:"tls,omitempty"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// RelayConfig configures the optional NATS relay.
type RelayConfig struct {
	Enabled       bool              `json:"enabled"`
	URL           string            `json:"url,omitempty"`
	Prefix        string            `json:"prefix,omitempty"`
	Token         string            `json:"token,omitempty"`
	ReconnectWait time.Duration     `json:"reconnect_wait,omitempty"`
	TLS           tlsutil.ClientTLS `json:"tls,omitempty"`
}

// Default returns the built-in configuration: a daemon on localhost:2000,
// the gateway on localhost:2100, metrics on, relay off.
func Default() *Config {
	reconnect := retry.DefaultConfig()
	return &Config{
		Daemon: DaemonConfig{
			URL:              "http://localhost:2000",
			Channels:         []string{transport.ChannelLogs, transport.ChannelData},
			RequestTimeout:   30 * time.Second,
			HandshakeTimeout: 45 * time.Second,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:  reconnect.MaxAttempts,
			InitialDelay: reconnect.InitialDelay,
			MaxDelay:     reconnect.MaxDelay,
			Multiplier:   reconnect.Multiplier,
			Jitter:       reconnect.AddJitter,
		},
		Inbox:   InboxConfig{Capacity: 4096},
		Actions: ActionsConfig{Workers: 4, QueueSize: 256},
		Gateway: GatewayConfig{Enabled: true, Listen: "127.0.0.1:2100"},
		Metrics: MetricsConfig{Enabled: true},
		Relay: RelayConfig{
			URL:           "nats://127.0.0.1:4222",
			Prefix:        "ywdash",
			ReconnectWait: 2 * time.Second,
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Daemon.URL == "" {
		return invalid("daemon.url is required")
	}
	u, err := url.Parse(c.Daemon.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(fmt.Sprintf("daemon.url %q must be an absolute http(s) URL", c.Daemon.URL))
	}
	for _, ch := range c.Daemon.Channels {
		if ch != transport.ChannelLogs && ch != transport.ChannelData {
			return invalid(fmt.Sprintf("daemon.channels: unknown channel %q", ch))
		}
	}
	if c.Daemon.RequestTimeout < 0 || c.Daemon.HandshakeTimeout < 0 {
		return invalid("daemon timeouts cannot be negative")
	}
	if c.Daemon.RateLimit < 0 || c.Daemon.Burst < 0 {
		return invalid("daemon.rate_limit and daemon.burst cannot be negative")
	}
	if err := c.Reconnect.Retry().Validate(); err != nil {
		return errors.WrapFatal(fmt.Errorf("%w: reconnect: %v", errors.ErrInvalidConfig, err),
			"config", "Validate", "reconnect section")
	}
	if c.Inbox.Capacity <= 0 {
		return invalid("inbox.capacity must be positive")
	}
	if c.Actions.Workers <= 0 || c.Actions.QueueSize <= 0 {
		return invalid("actions.workers and actions.queue_size must be positive")
	}
	if c.Gateway.Enabled && c.Gateway.Listen == "" {
		return invalid("gateway.listen is required when the gateway is enabled")
	}
	if c.Gateway.TLS.Enabled() && c.Gateway.TLS.KeyFile == "" {
		return invalid("gateway.tls.key_file is required with gateway.tls.cert_file")
	}
	for section, v := range map[string]string{
		"daemon.tls":  c.Daemon.TLS.MinVersion,
		"gateway.tls": c.Gateway.TLS.MinVersion,
		"relay.tls":   c.Relay.TLS.MinVersion,
	} {
		if !tlsutil.ValidVersion(v) {
			return invalid(fmt.Sprintf("%s.min_version %q must be 1.2 or 1.3", section, v))
		}
	}
	if c.Relay.Enabled {
		if c.Relay.URL == "" {
			return invalid("relay.url is required when the relay is enabled")
		}
		if c.Relay.Prefix == "" || strings.ContainsAny(c.Relay.Prefix, " *>") {
			return invalid(fmt.Sprintf("relay.prefix %q is not a valid NATS subject prefix", c.Relay.Prefix))
		}
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapFatal(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg), "config", "Validate", "check")
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String returns the configuration as indented JSON with secrets masked.
func (c *Config) String() string {
	clone := c.Clone()
	if clone.Relay.Token != "" {
		clone.Relay.Token = "***"
	}
	data, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
