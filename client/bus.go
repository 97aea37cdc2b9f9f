package client

import "sync"

// eventBus is a single-producer, multi-observer hot stream. Delivery is
// synchronous and in-order: Publish runs every observer's handler on
// the caller's goroutine before returning. Subscribers never see events
// published before they subscribed.
//
// The observer set is never exposed directly; Publish takes a snapshot
// of it before dispatching, so an observer that unsubscribes mid-dispatch
// cannot corrupt the in-flight iteration.
type subscription struct {
	id uint64
	fn func(Event)
}

type eventBus struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription
}

func newEventBus() *eventBus {
	return &eventBus{}
}

// Subscribe registers observer and returns a handle that removes it.
// Calling the returned func more than once is a no-op.
func (b *eventBus) Subscribe(observer func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, fn: observer})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every currently-subscribed observer, in
// subscription order. A panicking handler is recovered so it cannot
// prevent sibling observers from receiving the event.
func (b *eventBus) Publish(ev Event) {
	b.mu.Lock()
	snapshot := make([]subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		dispatch(s.fn, ev)
	}
}

func dispatch(handler func(Event), ev Event) {
	defer func() { _ = recover() }()
	handler(ev)
}
