package order

import "context"

// EventType names an order lifecycle event.
type EventType string

const (
	EventCreated     EventType = "order.created"
	EventConfirmed   EventType = "order.confirmed"
	EventUnconfirmed EventType = "order.unconfirmed"
)

// Event is published after an order changes.
type Event struct {
	Type  EventType
	Order Order
}

// Publisher delivers order events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
