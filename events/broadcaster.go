package events

import "whatsapp-relay/models"

// Broadcaster delivers an event to whoever is listening. Implementations
// must not block the caller on slow consumers.
type Broadcaster interface {
	Broadcast(evt models.Event)
}

// BroadcasterFunc adapts a plain function to Broadcaster.
type BroadcasterFunc func(evt models.Event)

func (f BroadcasterFunc) Broadcast(evt models.Event) { f(evt) }

// Multi fans an event out to several broadcasters in order.
type Multi []Broadcaster

func (m Multi) Broadcast(evt models.Event) {
	for _, b := range m {
		if b != nil {
			b.Broadcast(evt)
		}
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Broadcast(models.Event) {}
