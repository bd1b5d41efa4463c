package core

import "context"

// Message is the wire-level record exchanged with a broker. Implementations
// are provided by the broker plugins; connectors wrap each received Message
// in an Envelope whose Ack and Nack call through to it.
type Message interface {
	Key() []byte
	Value() []byte
	Headers() map[string]string
	Ack() error
	Nack() error
}

// Handler receives messages from a broker subscription.
type Handler func(ctx context.Context, msg Message) error

// Record is a Message built in process, used when publishing.
// Ack and Nack are no-ops.
type Record struct {
	K []byte
	V []byte
	H map[string]string
}

func (r Record) Key() []byte                { return r.K }
func (r Record) Value() []byte              { return r.V }
func (r Record) Headers() map[string]string { return r.H }
func (r Record) Ack() error                 { return nil }
func (r Record) Nack() error                { return nil }
