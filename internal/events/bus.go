// Package events provides a minimal typed observer list. Stores publish
// their state changes (phase transitions, corruption levels, delivered
// messages) through a Bus so consumers never reach into another store's
// internals.
package events

import "sync"

// Bus fans one event type out to its subscribers. Publish calls each
// subscriber synchronously, in subscription order.
type Bus[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers fn and returns a function that removes exactly this
// subscription. Unsubscribing twice is safe.
func (b *Bus[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber[T]{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every current subscriber.
func (b *Bus[T]) Publish(ev T) {
	b.mu.Lock()
	subs := make([]subscriber[T], len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// Len reports the current subscriber count.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
