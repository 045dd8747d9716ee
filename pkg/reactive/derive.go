package reactive

import "sync"

// Derive keeps out equal to compute() by re-running compute whenever any
// source changes. compute reads the sources' current values itself, so the
// result is always a function of the latest value of every input.
// The returned subscription detaches from all sources.
func Derive[R any](out *Value[R], compute func() R, sources ...Source) Subscription {
	var mu sync.Mutex
	recompute := func() {
		mu.Lock()
		defer mu.Unlock()
		out.Set(compute())
	}

	var group Group
	for _, src := range sources {
		group.Add(src.Watch(recompute))
	}
	return &group
}

// Map derives a cell from a single source cell.
func Map[A, R any](src *Value[A], fn func(A) R) (*Value[R], Subscription) {
	out := NewValue(fn(src.Get()))
	sub := src.Subscribe(func(a A) { out.Set(fn(a)) })
	return out, sub
}

// Accumulate folds every value of a replay stream into a cell.
func Accumulate[T, S any](src *Replay[T], initial S, fold func(S, T) S) (*Value[S], Subscription) {
	out := NewValue(initial)
	sub := src.Subscribe(func(v T) {
		out.Update(func(s S) S { return fold(s, v) })
	})
	return out, sub
}
