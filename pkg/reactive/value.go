package reactive

import "sync"

// Value is a current-value cell. Subscribers receive the current value on
// subscription and every later one.
type Value[T any] struct {
	mu      sync.Mutex
	current T
	version uint64
	hub     hub[T]
}

// NewValue creates a cell holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{current: initial, version: 1}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the value and notifies subscribers.
func (v *Value[T]) Set(next T) {
	v.Update(func(T) T { return next })
}

// Update atomically replaces the value with fn(current) and notifies
// subscribers. fn runs under the cell lock and must not touch the cell.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	next := fn(v.current)
	v.current = next
	v.version++
	seq := v.version
	subs := v.hub.snapshot()
	v.mu.Unlock()

	deliverAll(subs, seq, next)
	return next
}

// Subscribe delivers the current value to fn, then every change.
func (v *Value[T]) Subscribe(fn func(T)) Subscription {
	v.mu.Lock()
	current, seq := v.current, v.version
	sub, subscription := v.hub.add(&v.mu, always(fn))
	sub.mu.Lock()
	v.mu.Unlock()

	sub.call(current)
	sub.seen = seq
	sub.mu.Unlock()

	return subscription
}

// Watch calls fn on subscription and on every change.
func (v *Value[T]) Watch(fn func()) Subscription {
	return v.Subscribe(func(T) { fn() })
}
