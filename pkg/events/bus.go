package events

import (
	"sync"

	"github.com/google/uuid"
)

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus is a per-participant pub/sub event bus with support for global
// subscribers. The router emits structured events; each subscriber (the
// host's connection, the console, a recorder in tests) renders them for its
// own transport.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID][]Subscriber
	global      []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[uuid.UUID][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific participant's events.
// Subscribing under Console receives console deliveries.
func (b *Bus) Subscribe(id uuid.UUID, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = append(b.subscribers[id], sub)
}

// Unsubscribe removes a subscriber for a specific participant.
func (b *Bus) Unsubscribe(id uuid.UUID, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[id]
	for i, s := range subs {
		if s == sub {
			b.subscribers[id] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[id]) == 0 {
		delete(b.subscribers, id)
	}
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Emit sends an event to the participant in ev.Player and all global
// subscribers.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	subs := b.subscribers[ev.Player]
	globals := b.global
	b.mu.RUnlock()

	deliver(subs, ev)
	deliver(globals, ev)
}

// EmitTo sends a copy of ev to each recipient.
func (b *Bus) EmitTo(recipients []uuid.UUID, ev Event) {
	for _, id := range recipients {
		ev.Player = id
		b.Emit(ev)
	}
}

// EmitToExcept sends a copy of ev to each recipient not listed in except.
func (b *Bus) EmitToExcept(recipients []uuid.UUID, ev Event, except ...uuid.UUID) {
	skip := make(map[uuid.UUID]bool, len(except))
	for _, id := range except {
		skip[id] = true
	}
	for _, id := range recipients {
		if skip[id] {
			continue
		}
		ev.Player = id
		b.Emit(ev)
	}
}

// Subscribers returns the number of subscribers for a participant.
func (b *Bus) Subscribers(id uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[id])
}

// Cleanup removes closed subscribers from all lists.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, subs := range b.subscribers {
		var active []Subscriber
		for _, s := range subs {
			if !s.Closed() {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			delete(b.subscribers, id)
		} else {
			b.subscribers[id] = active
		}
	}

	var activeGlobal []Subscriber
	for _, s := range b.global {
		if !s.Closed() {
			activeGlobal = append(activeGlobal, s)
		}
	}
	b.global = activeGlobal
}

func deliver(subs []Subscriber, ev Event) {
	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}
