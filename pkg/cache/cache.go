// Package cache provides the keyed tables behind entity sessions and status
// projectors: thread-safe, insertion ordered, with an atomic get-or-create.
//
// Entries live until they are deleted or the table is cleared. There is no
// eviction policy since both users require that at most one value is ever
// built per key.
package cache

import (
	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/metric"
)

// Cache is a keyed table of values of type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found.
	Get(key string) (V, bool)

	// GetOrCreate returns the value stored under key, calling create to build
	// it when absent. create runs at most once per key, under the table lock,
	// and must not call back into the cache. created reports whether this call
	// constructed the value.
	GetOrCreate(key string, create func() (V, error)) (value V, created bool, err error)

	// Set stores a value with the given key. Returns true if a new entry was created.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	// The eviction callback, if any, runs after the entry is removed.
	Delete(key string) (bool, error)

	// Clear removes all entries, running the eviction callback for each.
	Clear() error

	// Size returns the current number of entries.
	Size() int

	// Keys returns the keys currently held, in insertion order.
	Keys() []string

	// Close drops the entries without eviction callbacks and gives them back
	// to the shared entry gauge.
	Close() error
}

// EvictCallback is called when an entry is removed from the cache.
type EvictCallback[V any] func(key string, value V)

// Option configures a cache.
type Option[V any] func(*settings[V])

type settings[V any] struct {
	core    *metric.Metrics
	table   string
	onEvict EvictCallback[V]
}

// WithMetrics reports the cache as table into the core metrics of
// registry. Caches given the same table name add up, which is how the
// per-session step and download projectors are exported. Ignored if the
// registry is nil or table is empty.
func WithMetrics[V any](registry *metric.MetricsRegistry, table string) Option[V] {
	return func(s *settings[V]) {
		if core := registry.CoreMetrics(); core != nil && table != "" {
			s.core, s.table = core, table
		}
	}
}

// WithEvictionCallback sets a callback invoked when entries are deleted or cleared.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(s *settings[V]) { s.onEvict = callback }
}

// New creates an empty cache.
func New[V any](options ...Option[V]) (Cache[V], error) {
	s := &settings[V]{}
	for _, opt := range options {
		if opt != nil {
			opt(s)
		}
	}
	return newSimpleCache(s), nil
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
