package bus

// Bus is an in-process pub/sub bus for game events.
//
// Handlers subscribe by Event.Type and run synchronously in the publishing
// goroutine, in subscription order. Errors from several handlers are joined
// and returned from Publish. All methods are safe for concurrent use.
type Bus interface {
	// Publish delivers event to every active subscriber of its type.
	Publish(event Event) error
	// Subscribe registers handler for eventType.
	Subscribe(eventType string, handler Handler) Subscription
	// Unsubscribe cancels sub. A nil subscription is ignored.
	Unsubscribe(sub Subscription)
	// Subscribers counts the active subscriptions for eventType.
	Subscribers(eventType string) int

	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
	Metrics() Metrics
}

// Event is an immutable message carried by the bus.
type Event interface {
	Type() string
}

type Handler func(event Event) error

// Subscription is a handle to one registered handler.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	// Cancel removes the handler. Repeated calls are no-ops.
	Cancel()
}

// Observer is told about every delivery. Metrics are only collected while at
// least one observer is registered.
type Observer interface {
	OnDelivered(eventType string, handlers int, err error)
}

type Metrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
}
