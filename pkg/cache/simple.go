package cache

import (
	"slices"
	"sync"

	"github.com/youwol/ywdash/errors"
)

// simpleCache is the map-backed Cache. Keys keep their insertion order so
// session and projector listings are stable.
type simpleCache[V any] struct {
	mu      sync.RWMutex
	items   map[string]V
	order   []string
	metrics *tableMetrics
	onEvict EvictCallback[V]
}

func newSimpleCache[V any](s *settings[V]) *simpleCache[V] {
	return &simpleCache[V]{
		items:   make(map[string]V),
		metrics: newTableMetrics(s.core, s.table),
		onEvict: s.onEvict,
	}
}

func (c *simpleCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	value, ok := c.items[key]
	c.mu.RUnlock()
	c.metrics.lookup(ok)
	return value, ok
}

// GetOrCreate checks under the read lock first; the build itself happens
// under the write lock after a second check, so concurrent callers for one
// key never both run create.
func (c *simpleCache[V]) GetOrCreate(key string, create func() (V, error)) (V, bool, error) {
	var zero V
	if err := validateKey(key); err != nil {
		return zero, false, err
	}

	if value, ok := c.Get(key); ok {
		return value, false, nil
	}

	c.mu.Lock()
	if value, ok := c.items[key]; ok {
		c.mu.Unlock()
		return value, false, nil
	}
	value, err := create()
	if err != nil {
		c.mu.Unlock()
		return zero, false, errors.Wrap(err, "cache", "GetOrCreate", "create "+key)
	}
	c.items[key] = value
	c.order = append(c.order, key)
	c.mu.Unlock()

	c.metrics.write(opCreate, 1)
	return value, true, nil
}

func (c *simpleCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	_, existed := c.items[key]
	c.items[key] = value
	if !existed {
		c.order = append(c.order, key)
	}
	c.mu.Unlock()

	added := 0
	if !existed {
		added = 1
	}
	c.metrics.write(opSet, added)
	return !existed, nil
}

func (c *simpleCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	value, ok := c.items[key]
	if ok {
		delete(c.items, key)
		if i := slices.Index(c.order, key); i >= 0 {
			c.order = slices.Delete(c.order, i, i+1)
		}
	}
	c.mu.Unlock()

	if !ok {
		return false, nil
	}
	c.metrics.write(opDelete, -1)
	if c.onEvict != nil {
		c.onEvict(key, value)
	}
	return true, nil
}

func (c *simpleCache[V]) Clear() error {
	items, order := c.drain()
	c.metrics.write(opClear, -len(order))
	if c.onEvict != nil {
		for _, key := range order {
			c.onEvict(key, items[key])
		}
	}
	return nil
}

func (c *simpleCache[V]) Close() error {
	_, order := c.drain()
	c.metrics.release(len(order))
	return nil
}

// drain empties the table and hands back what it held.
func (c *simpleCache[V]) drain() (map[string]V, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, order := c.items, c.order
	c.items = make(map[string]V)
	c.order = nil
	return items, order
}

func (c *simpleCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *simpleCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	return keys
}
