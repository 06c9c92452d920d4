// Package eventbus implements the daemon's typed single-producer/
// multi-consumer broadcast (spec component C5). It fans watcher
// FileEvents out to the local API's SSE endpoint and the UDS change
// stream; the syncer does not subscribe to it, the supervisor hands it
// each event directly.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Listener receives one event per Emit call. A panicking listener is
// recovered per-listener so one faulty listener cannot break delivery to
// the others; the bus guarantees delivery *attempt*, not delivery.
type Listener[T any] func(event T)

// Bus is a generic broadcast channel. The zero value is not usable; use
// New.
type Bus[T any] struct {
	mu        sync.RWMutex
	listeners map[uuid.UUID]Listener[T]
}

// New constructs an empty Bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{
		listeners: make(map[uuid.UUID]Listener[T]),
	}
}

// Subscribe registers listener and returns a handle usable with
// Unsubscribe.
func (b *Bus[T]) Subscribe(listener Listener[T]) uuid.UUID {
	id := uuid.New()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[id] = listener

	return id
}

// Unsubscribe removes the listener registered under id, if any.
func (b *Bus[T]) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, id)
}

// SubscriberCount returns the number of currently live listeners.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Emit invokes every live listener synchronously with event. A listener
// that panics is recovered and logged; the remaining listeners still
// receive the event.
func (b *Bus[T]) Emit(event T) {
	b.mu.RLock()
	listeners := make([]Listener[T], 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()

	for _, listener := range listeners {
		b.dispatch(listener, event)
	}
}

func (b *Bus[T]) dispatch(listener Listener[T], event T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("eventbus: listener panicked", "panic", r)
		}
	}()
	listener(event)
}
