package reactive

import "sync"

// Group owns a set of subscriptions and disposes them together.
// The zero value is ready to use.
type Group struct {
	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

// Add registers sub. If the group is already closed sub is cancelled at once.
func (g *Group) Add(subs ...Subscription) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		for _, s := range subs {
			if s != nil {
				s.Unsubscribe()
			}
		}
		return
	}
	for _, s := range subs {
		if s != nil {
			g.subs = append(g.subs, s)
		}
	}
	g.mu.Unlock()
}

// Len returns the number of live subscriptions.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}

// Unsubscribe cancels every subscription in reverse registration order.
func (g *Group) Unsubscribe() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.closed = true
	g.mu.Unlock()

	for i := len(subs) - 1; i >= 0; i-- {
		subs[i].Unsubscribe()
	}
}

// Closed reports whether the group has been disposed.
func (g *Group) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
