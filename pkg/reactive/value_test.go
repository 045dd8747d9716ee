package reactive

import (
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_SubscribeReceivesCurrent(t *testing.T) {
	v := NewValue("a")

	var got []string
	sub := v.Subscribe(func(s string) { got = append(got, s) })
	v.Set("b")
	sub.Unsubscribe()
	v.Set("c")

	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, "c", v.Get())
}

func TestValue_UpdateIsAtomic(t *testing.T) {
	v := NewValue(0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Update(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, v.Get())
}

func TestValue_ConcurrentWritersLatestWins(t *testing.T) {
	v := NewValue(0)
	var mu sync.Mutex
	var last int
	v.Subscribe(func(n int) {
		mu.Lock()
		last = n
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Update(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 50, last)
}

func TestDerive_RecomputesFromLatest(t *testing.T) {
	first := NewValue([]string{"b", "a"})
	second := NewValue([]string{"c"})
	out := NewValue[[]string](nil)

	sub := Derive(out, func() []string {
		merged := append(append([]string{}, first.Get()...), second.Get()...)
		sort.Strings(merged)
		return merged
	}, first, second)

	assert.Equal(t, []string{"a", "b", "c"}, out.Get())

	second.Set([]string{"0"})
	assert.Equal(t, []string{"0", "a", "b"}, out.Get())

	sub.Unsubscribe()
	first.Set(nil)
	assert.Equal(t, []string{"0", "a", "b"}, out.Get())
}

func TestDerive_WithReplaySource(t *testing.T) {
	events := NewReplay[string]()
	events.Publish("x")
	out := NewValue("")

	Derive(out, func() string { return strings.Join(events.Snapshot(), ",") }, events)
	events.Publish("y")

	assert.Equal(t, "x,y", out.Get())
}

func TestMapAndAccumulate(t *testing.T) {
	src := NewValue(2)
	doubled, sub := Map(src, func(n int) int { return n * 2 })
	defer sub.Unsubscribe()
	src.Set(5)
	assert.Equal(t, 10, doubled.Get())

	stream := NewReplay[int]()
	stream.Publish(1)
	sum, sub2 := Accumulate(stream, 0, func(acc, n int) int { return acc + n })
	defer sub2.Unsubscribe()
	stream.Publish(2)
	stream.Publish(3)
	assert.Equal(t, 6, sum.Get())
}

func TestGroup(t *testing.T) {
	var order []int
	var g Group
	g.Add(SubscriptionFunc(func() { order = append(order, 1) }))
	g.Add(SubscriptionFunc(func() { order = append(order, 2) }), nil)
	assert.Equal(t, 2, g.Len())

	g.Unsubscribe()
	assert.Equal(t, []int{2, 1}, order)
	assert.True(t, g.Closed())

	g.Add(SubscriptionFunc(func() { order = append(order, 3) }))
	assert.Equal(t, []int{2, 1, 3}, order)
	assert.Equal(t, 0, g.Len())
}
