package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/miladsoleymani/chanflow/config"
)

var (
	// ErrBrokerClosed is returned when operations are attempted on a closed broker.
	ErrBrokerClosed = errors.New("chanflow: broker is closed")

	// ErrNoHandler is returned when a unit bound as a consumer has no handler,
	// or when a broker has no subscription for a delivered topic.
	ErrNoHandler = errors.New("chanflow: no handler")

	// ErrAlreadyStarted is returned when Run is called on a running graph.
	ErrAlreadyStarted = errors.New("chanflow: graph already started")

	// ErrNoBroker is returned when a connector is used before its broker exists.
	ErrNoBroker = errors.New("chanflow: broker is nil")

	// ErrTypeMismatch is shared with the config package: a payload or a stored
	// value is not assignable to the declared type.
	ErrTypeMismatch = config.ErrTypeMismatch

	// ErrUnsatisfiedConsumer: a channel is consumed but nothing produces onto it.
	ErrUnsatisfiedConsumer = errors.New("chanflow: unsatisfied consumer")

	// ErrUnconsumedProducer: a channel is produced onto but nothing consumes it.
	ErrUnconsumedProducer = errors.New("chanflow: unconsumed producer")

	// ErrDuplicateBinding: the same unit is bound twice to one channel and direction.
	ErrDuplicateBinding = errors.New("chanflow: duplicate binding")

	// ErrAckAfterTerminal is returned by Ack or Nack on an already settled envelope.
	ErrAckAfterTerminal = errors.New("chanflow: envelope already settled")

	// ErrOverflow is the nack reason for envelopes dropped by a full link queue.
	ErrOverflow = errors.New("chanflow: link queue overflow")

	// ErrGraphClosed is returned when dispatching into a closed graph.
	ErrGraphClosed = errors.New("chanflow: graph is closed")

	// ErrUnknownChannel is returned when dispatching onto a channel the graph does not know.
	ErrUnknownChannel = errors.New("chanflow: unknown channel")

	// ErrNoRoute is returned when a unit emits but produces onto no channel.
	ErrNoRoute = errors.New("chanflow: unit has no outgoing channel")
)

// AssemblyError reports which rule a channel violated during Assemble.
// errors.Is matches it against the rule's sentinel.
type AssemblyError struct {
	Channel string
	Rule    error
	Detail  string
}

func (e *AssemblyError) Error() string {
	rule := strings.TrimPrefix(e.Rule.Error(), "chanflow: ")
	if e.Detail == "" {
		return fmt.Sprintf("chanflow: channel %q: %s", e.Channel, rule)
	}
	return fmt.Sprintf("chanflow: channel %q: %s: %s", e.Channel, rule, e.Detail)
}

func (e *AssemblyError) Unwrap() error { return e.Rule }
