// Package reactive provides the push-based primitives the aggregation core is
// built on: an unbounded replay stream, a current-value cell, declarative
// derivation from the latest values of several sources, and subscription
// groups for disposal.
//
// Callbacks run synchronously on the publishing goroutine. A subscriber that
// attaches while values are being published receives the full history in
// order followed by live values, with no value delivered twice. Publishes to
// one stream or cell must be serialized by the caller; the router does this
// for every stream it owns.
package reactive

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Subscription cancels a callback registration. Unsubscribe is idempotent
// and may be called from inside the callback itself.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() { f() }

// Source is anything that can signal "something changed".
type Source interface {
	Watch(func()) Subscription
}

type subscriber[T any] struct {
	mu     sync.Mutex
	fn     func(T) (stop bool)
	seen   uint64
	closed atomic.Bool
	detach func()
}

func (s *subscriber[T]) deliver(seq uint64, v T) {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.seen || s.closed.Load() {
		return
	}
	s.seen = seq
	s.call(v)
}

// call runs fn and detaches the subscriber when fn asks to stop.
// Must be called with s.mu held.
func (s *subscriber[T]) call(v T) {
	if s.fn(v) && !s.closed.Swap(true) {
		s.detach()
	}
}

func always[T any](fn func(T)) func(T) bool {
	return func(v T) bool {
		fn(v)
		return false
	}
}

// hub holds the subscriber set shared by Replay and Value.
// The owner's mutex guards subs and nextID.
type hub[T any] struct {
	subs   map[uint64]*subscriber[T]
	nextID uint64
}

// add registers fn. Must be called with mu held.
func (h *hub[T]) add(mu *sync.Mutex, fn func(T) bool) (*subscriber[T], Subscription) {
	if h.subs == nil {
		h.subs = make(map[uint64]*subscriber[T])
	}
	h.nextID++
	id := h.nextID
	sub := &subscriber[T]{fn: fn}
	sub.detach = func() {
		mu.Lock()
		delete(h.subs, id)
		mu.Unlock()
	}
	h.subs[id] = sub
	return sub, SubscriptionFunc(func() {
		if !sub.closed.Swap(true) {
			sub.detach()
		}
	})
}

func (h *hub[T]) snapshot() []*subscriber[T] {
	if len(h.subs) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*subscriber[T], len(ids))
	for i, id := range ids {
		out[i] = h.subs[id]
	}
	return out
}

func deliverAll[T any](subs []*subscriber[T], seq uint64, v T) {
	for _, sub := range subs {
		sub.deliver(seq, v)
	}
}
