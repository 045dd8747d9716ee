// Package config loads the ywdash configuration.
//
// Configuration is built in layers: built-in defaults, then every file added
// with AddLayer (JSON, or YAML for .yaml/.yml files), then environment
// variables prefixed with YWDASH_. Later layers override earlier ones key by
// key, so a file only needs the settings it changes.
//
// Durations may be written as Go duration strings ("750ms", "30s") or as
// days ("2d").
//
//	loader := config.NewLoader()
//	loader.AddLayer("ywdash.yaml")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Recognised environment variables:
//
//	YWDASH_DAEMON_URL          daemon base URL
//	YWDASH_DAEMON_RATE_LIMIT   requests per second towards the daemon
//	YWDASH_GATEWAY_LISTEN      gateway listen address
//	YWDASH_GATEWAY_ENABLED     true/false
//	YWDASH_METRICS_ENABLED     true/false
//	YWDASH_RELAY_URL           NATS URL of the relay
//	YWDASH_RELAY_PREFIX        relay subject prefix
//	YWDASH_RELAY_ENABLED       true/false
//	YWDASH_ACTIONS_WORKERS     action worker count
package config
