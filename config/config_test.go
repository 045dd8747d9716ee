package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youwol/ywdash/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.getenv = func(key string) string { return env[key] }
	return l
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:2000", cfg.Daemon.URL)
	assert.False(t, cfg.Relay.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.Retry().InitialDelay)
}

func TestLoader_NoLayers(t *testing.T) {
	cfg, err := newTestLoader(nil).Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoader_JSONLayerOverridesDefaults(t *testing.T) {
	path := writeFile(t, "ywdash.json", `{
		"daemon": {"url": "http://localhost:3000", "request_timeout": "5s"},
		"reconnect": {"max_delay": "1m"}
	}`)

	l := newTestLoader(nil)
	l.EnableValidation(true)
	cfg, err := l.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", cfg.Daemon.URL)
	assert.Equal(t, 5*time.Second, cfg.Daemon.RequestTimeout)
	assert.Equal(t, 45*time.Second, cfg.Daemon.HandshakeTimeout, "untouched keys keep their default")
	assert.Equal(t, time.Minute, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.InitialDelay)
}

func TestLoader_YAMLLayers(t *testing.T) {
	base := writeFile(t, "base.yaml", `
daemon:
  url: http://localhost:2001
relay:
  enabled: true
  prefix: dash
  reconnect_wait: 2d
`)
	override := writeFile(t, "override.yml", `
relay:
  url: nats://bus:4222
gateway:
  listen: 0.0.0.0:9000
  tls:
    cert_file: /etc/ywdash/cert.pem
    key_file: /etc/ywdash/key.pem
    min_version: "1.3"
`)

	l := newTestLoader(nil)
	l.AddLayer(base)
	l.AddLayer(override)
	l.EnableValidation(true)

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:2001", cfg.Daemon.URL)
	assert.True(t, cfg.Relay.Enabled)
	assert.Equal(t, "dash", cfg.Relay.Prefix)
	assert.Equal(t, "nats://bus:4222", cfg.Relay.URL)
	assert.Equal(t, 48*time.Hour, cfg.Relay.ReconnectWait)
	assert.Equal(t, "0.0.0.0:9000", cfg.Gateway.Listen)
	assert.True(t, cfg.Gateway.TLS.Enabled())
	assert.Equal(t, "1.3", cfg.Gateway.TLS.MinVersion)
	assert.False(t, cfg.Daemon.TLS.Enabled())
}

func TestLoader_EnvOverrides(t *testing.T) {
	l := newTestLoader(map[string]string{
		"YWDASH_DAEMON_URL":        "https://daemon:2000",
		"YWDASH_DAEMON_RATE_LIMIT": "2.5",
		"YWDASH_RELAY_ENABLED":     "true",
		"YWDASH_METRICS_ENABLED":   "false",
		"YWDASH_ACTIONS_WORKERS":   "8",
	})
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://daemon:2000", cfg.Daemon.URL)
	assert.Equal(t, 2.5, cfg.Daemon.RateLimit)
	assert.True(t, cfg.Relay.Enabled)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 8, cfg.Actions.Workers)
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) *Loader
	}{
		{"missing file", func(t *testing.T) *Loader {
			l := newTestLoader(nil)
			l.AddLayer(filepath.Join(t.TempDir(), "absent.json"))
			return l
		}},
		{"malformed json", func(t *testing.T) *Loader {
			l := newTestLoader(nil)
			l.AddLayer(writeFile(t, "bad.json", `{"daemon":`))
			return l
		}},
		{"bad duration", func(t *testing.T) *Loader {
			l := newTestLoader(nil)
			l.AddLayer(writeFile(t, "d.json", `{"daemon": {"request_timeout": "soon"}}`))
			return l
		}},
		{"bad env bool", func(t *testing.T) *Loader {
			return newTestLoader(map[string]string{"YWDASH_RELAY_ENABLED": "maybe"})
		}},
		{"validation", func(t *testing.T) *Loader {
			l := newTestLoader(map[string]string{"YWDASH_DAEMON_URL": "localhost"})
			l.EnableValidation(true)
			return l
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.setup(t).Load()
			require.Error(t, err)
			assert.True(t, errors.IsFatal(err), "got %v", err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.Daemon.URL = "" }},
		{"ws url", func(c *Config) { c.Daemon.URL = "ws://localhost:2000" }},
		{"unknown channel", func(c *Config) { c.Daemon.Channels = []string{"ws-other"} }},
		{"negative rate", func(c *Config) { c.Daemon.RateLimit = -1 }},
		{"backoff bounds", func(c *Config) { c.Reconnect.MaxDelay = time.Millisecond }},
		{"zero inbox", func(c *Config) { c.Inbox.Capacity = 0 }},
		{"zero workers", func(c *Config) { c.Actions.Workers = 0 }},
		{"gateway without listen", func(c *Config) { c.Gateway.Listen = "" }},
		{"gateway cert without key", func(c *Config) { c.Gateway.TLS.CertFile = "cert.pem" }},
		{"daemon tls version", func(c *Config) { c.Daemon.TLS.MinVersion = "1.0" }},
		{"relay wildcard prefix", func(c *Config) {
			c.Relay.Enabled = true
			c.Relay.Prefix = "a.*"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestConfig_StringMasksToken(t *testing.T) {
	cfg := Default()
	cfg.Relay.Token = "s3cret"

	s := cfg.String()
	assert.NotContains(t, s, "s3cret")
	assert.Contains(t, s, `"token": "***"`)
	assert.Equal(t, "s3cret", cfg.Relay.Token, "String must not mutate the config")
}
