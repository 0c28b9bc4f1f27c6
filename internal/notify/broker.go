package notify

import (
	"fmt"
	"sync"
)

// Broker fans broadcasts out between in-process buses. Each bus stands in
// for one application instance; a broadcast from one bus is delivered to the
// subscribers of every other bus attached to the same broker, never back to
// the sender.
type Broker struct {
	mu    sync.Mutex
	buses map[*Bus]bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{buses: make(map[*Bus]bool)}
}

// Attach creates a new bus connected to the broker.
func (b *Broker) Attach() *Bus {
	bus := &Bus{
		broker: b,
		subs:   make(map[string]map[int]Handler),
	}
	b.mu.Lock()
	b.buses[bus] = true
	b.mu.Unlock()
	return bus
}

// siblings returns every attached bus except the given one.
func (b *Broker) siblings(of *Bus) []*Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Bus, 0, len(b.buses))
	for bus := range b.buses {
		if bus != of {
			out = append(out, bus)
		}
	}
	return out
}

func (b *Broker) detach(bus *Bus) {
	b.mu.Lock()
	delete(b.buses, bus)
	b.mu.Unlock()
}

// Bus is one attached endpoint of a Broker. It implements Notifier.
type Bus struct {
	broker *Broker
	mu     sync.Mutex
	subs   map[string]map[int]Handler
	nextID int
	closed bool
}

// Broadcast implements Notifier. Delivery is synchronous, which preserves
// same-key ordering per receiver.
func (bus *Bus) Broadcast(key, value string) error {
	bus.mu.Lock()
	closed := bus.closed
	bus.mu.Unlock()
	if closed {
		return fmt.Errorf("bus is closed")
	}
	for _, sibling := range bus.broker.siblings(bus) {
		sibling.dispatch(key, value)
	}
	return nil
}

// Subscribe implements Notifier.
func (bus *Bus) Subscribe(key string, fn Handler) func() {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.closed {
		return func() {}
	}
	if bus.subs[key] == nil {
		bus.subs[key] = make(map[int]Handler)
	}
	id := bus.nextID
	bus.nextID++
	bus.subs[key][id] = fn

	return func() {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		if handlers, ok := bus.subs[key]; ok {
			delete(handlers, id)
		}
	}
}

// Close implements Notifier, detaching the bus from its broker.
func (bus *Bus) Close() error {
	bus.mu.Lock()
	if bus.closed {
		bus.mu.Unlock()
		return nil
	}
	bus.closed = true
	bus.subs = make(map[string]map[int]Handler)
	bus.mu.Unlock()

	bus.broker.detach(bus)
	return nil
}

// dispatch invokes the bus's handlers for a key, outside the sender's lock.
func (bus *Bus) dispatch(key, value string) {
	bus.mu.Lock()
	handlers := make([]Handler, 0, len(bus.subs[key]))
	for _, fn := range bus.subs[key] {
		handlers = append(handlers, fn)
	}
	bus.mu.Unlock()

	for _, fn := range handlers {
		fn(value)
	}
}
