// Package notify implements synchronous push-style fan-out with explicit
// unsubscribe tokens.
package notify

import (
	"sync"
	"sync/atomic"
)

// Broadcaster delivers each published value to every subscriber, in
// subscription order, on the publishing goroutine.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []*subscription[T]
}

type subscription[T any] struct {
	id     uint64
	fn     func(T)
	active atomic.Bool
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Broadcaster[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s := &subscription[T]{fn: fn}
	s.active.Store(true)

	b.mu.Lock()
	b.nextID++
	s.id = b.nextID
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	return func() { b.remove(s) }
}

func (b *Broadcaster[T]) remove(s *subscription[T]) {
	// Deactivate first so a publish already iterating its copy skips us.
	if !s.active.Swap(false) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, cur := range b.subs {
		if cur.id == s.id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish calls every active subscriber with v. Subscribers may
// subscribe or unsubscribe from inside their callback.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	snapshot := make([]*subscription[T], len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		if s.active.Load() {
			s.fn(v)
		}
	}
}

// Len returns the number of active subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
