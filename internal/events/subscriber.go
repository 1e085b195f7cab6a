package events

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers raw event payloads on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

// Handler processes one message. A returned error is the handler's to
// report; the subscription keeps running.
type Handler func(data []byte) error

// QueueSubscriber delivers every message to a handler, load-balanced across
// members of the same queue group. Unlike Subscribe it never drops messages.
type QueueSubscriber interface {
	Handle(subject, queue string, fn Handler) (func(), error)
}
