package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/youwol/ywdash/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "YWDASH"

// durationKeys lists, per section, the keys holding durations.
var durationKeys = map[string][]string{
	"daemon":    {"request_timeout", "handshake_timeout"},
	"reconnect": {"initial_delay", "max_delay"},
	"relay":     {"reconnect_wait"},
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: EnvPrefix,
		getenv:    os.Getenv,
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges the defaults, every layer and the environment.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "encode merged layers")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "config", "Load", "decode merged layers")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// loadRaw reads one layer into a generic map, durations normalised to
// nanoseconds.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "read "+path)
	}

	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "config", "Load", "parse "+path)
	}

	if err := parseDurations(raw); err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %s: %v", errors.ErrInvalidConfig, path, err), "config", "Load", "parse durations")
	}
	return raw, nil
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(raw map[string]any) error {
	for section, keys := range durationKeys {
		values, ok := raw[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			s, ok := values[key].(string)
			if !ok {
				continue
			}
			d, err := parseDurationWithDays(s)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", section, key, err)
			}
			values[key] = d.Nanoseconds()
		}
	}
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// deepMerge merges override into base. Nested maps merge key by key, any
// other value replaces the base value.
func deepMerge(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		baseMap, baseIsMap := result[k].(map[string]any)
		overrideMap, overrideIsMap := v.(map[string]any)
		if baseIsMap && overrideIsMap {
			result[k] = deepMerge(baseMap, overrideMap)
			continue
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	env := func(key string) string { return l.getenv(l.envPrefix + "_" + key) }

	if val := env("DAEMON_URL"); val != "" {
		cfg.Daemon.URL = val
	}
	if val := env("DAEMON_RATE_LIMIT"); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return envError("DAEMON_RATE_LIMIT", err)
		}
		cfg.Daemon.RateLimit = f
	}
	if val := env("GATEWAY_LISTEN"); val != "" {
		cfg.Gateway.Listen = val
	}
	if val := env("RELAY_URL"); val != "" {
		cfg.Relay.URL = val
	}
	if val := env("RELAY_PREFIX"); val != "" {
		cfg.Relay.Prefix = val
	}
	if val := env("RELAY_TOKEN"); val != "" {
		cfg.Relay.Token = val
	}
	if val := env("ACTIONS_WORKERS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return envError("ACTIONS_WORKERS", err)
		}
		cfg.Actions.Workers = n
	}

	for key, dst := range map[string]*bool{
		"GATEWAY_ENABLED": &cfg.Gateway.Enabled,
		"METRICS_ENABLED": &cfg.Metrics.Enabled,
		"RELAY_ENABLED":   &cfg.Relay.Enabled,
	} {
		val := env(key)
		if val == "" {
			continue
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return envError(key, err)
		}
		*dst = b
	}
	return nil
}

func envError(key string, err error) error {
	return errors.WrapFatal(fmt.Errorf("%w: %s_%s: %v", errors.ErrInvalidConfig, EnvPrefix, key, err),
		"config", "Load", "environment override")
}
