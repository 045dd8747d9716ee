package reactive

import "sync"

// Replay is an unbounded multicast stream that remembers every value it has
// published and replays them to late subscribers.
type Replay[T any] struct {
	mu      sync.Mutex
	history []T
	hub     hub[T]
}

// NewReplay creates an empty replay stream.
func NewReplay[T any]() *Replay[T] {
	return &Replay[T]{}
}

// Push appends v to the history and returns the function that delivers it to
// the subscribers registered at append time. Callers that must append to
// several streams before anyone observes the value call every Push first,
// then every returned deliver.
func (r *Replay[T]) Push(v T) (deliver func()) {
	r.mu.Lock()
	r.history = append(r.history, v)
	seq := uint64(len(r.history))
	subs := r.hub.snapshot()
	r.mu.Unlock()

	return func() { deliverAll(subs, seq, v) }
}

// Publish appends v and delivers it.
func (r *Replay[T]) Publish(v T) {
	r.Push(v)()
}

// Subscribe replays the history to fn, in order, then forwards new values.
func (r *Replay[T]) Subscribe(fn func(T)) Subscription {
	return r.SubscribeUntil(always(fn))
}

// SubscribeUntil is Subscribe for a callback that detaches itself by
// returning true, during replay or later.
func (r *Replay[T]) SubscribeUntil(fn func(T) (stop bool)) Subscription {
	r.mu.Lock()
	history := r.history[:len(r.history):len(r.history)]
	sub, subscription := r.hub.add(&r.mu, fn)
	sub.mu.Lock()
	r.mu.Unlock()

	for _, v := range history {
		if sub.closed.Load() {
			break
		}
		sub.call(v)
	}
	sub.seen = uint64(len(history))
	sub.mu.Unlock()

	return subscription
}

// Watch calls fn for every value, replayed ones included.
func (r *Replay[T]) Watch(fn func()) Subscription {
	return r.Subscribe(func(T) { fn() })
}

// Snapshot returns a copy of the history.
func (r *Replay[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.history))
	copy(out, r.history)
	return out
}

// Len returns the number of values published so far.
func (r *Replay[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}
