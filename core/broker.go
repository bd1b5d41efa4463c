package core

import "context"

// Broker is the contract each broker plugin implements. Connectors use it to
// feed external sources into the graph and to drain external sinks.
type Broker interface {
	Publish(ctx context.Context, topic string, msg Message) error

	// Subscribe delivers messages on topic to handler and blocks until ctx is
	// cancelled. The handler returning an error means the message was not
	// processed; plugins leave it unacknowledged or nack it.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	Close() error
}
