package bus

// Handler processes one delivered message. Handlers run on the transport's
// delivery goroutine and must not block.
type Handler func(subject string, data []byte)

// Subscription is a live binding of a subject pattern to a handler.
type Subscription interface {
	// Unsubscribe removes the binding. Idempotent.
	Unsubscribe() error
}

// Bus is the pub/sub transport between gateway and controller. Delivery is
// at-least-once and FIFO per subscription.
type Bus interface {
	// Publish sends data on the given subject.
	Publish(subject string, data []byte) error

	// Subscribe binds a handler to every message matching the pattern.
	Subscribe(pattern string, h Handler) (Subscription, error)

	// QueueSubscribe binds a handler as part of a named queue group:
	// each message is delivered to one member of the group.
	QueueSubscribe(pattern, queue string, h Handler) (Subscription, error)

	// Closed fires when the underlying connection is permanently lost.
	Closed() <-chan struct{}

	// Close tears the connection down.
	Close()
}
