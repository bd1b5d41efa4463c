package core

import (
	"context"
	"reflect"
)

// Emitter forwards an envelope onto every channel the emitting unit produces on.
type Emitter func(ctx context.Context, env Envelope) error

// HandlerFunc processes one envelope delivered to a unit.
//
// The handler owns the envelope's acknowledgment. If it returns an error
// and the envelope is still unsettled, the graph nacks it with that error.
type HandlerFunc func(ctx context.Context, env Envelope, emit Emitter) error

// Middleware wraps a HandlerFunc to add cross-cutting behavior.
// Given middleware [A, B], the call order is A -> B -> handler.
type Middleware func(HandlerFunc) HandlerFunc

// Unit is a processing unit: something that consumes from channels, produces
// onto channels, or both. The payload types it declares are checked against
// its neighbors when the graph is assembled. A nil type means untyped.
type Unit struct {
	name    string
	accepts reflect.Type
	emits   reflect.Type
	handle  HandlerFunc
}

// NewUnit builds a unit from a raw handler. The handler acknowledges
// envelopes itself.
func NewUnit(name string, accepts, emits reflect.Type, h HandlerFunc) *Unit {
	return &Unit{name: name, accepts: accepts, emits: emits, handle: h}
}

// Transform builds a unit that converts each In payload into an Out payload.
// The output envelope inherits the input's metadata and acknowledgment, so the
// input is acked only when the output is acked downstream. An error from fn
// nacks the input.
func Transform[In, Out any](name string, fn func(context.Context, In) (Out, error)) *Unit {
	return &Unit{
		name:    name,
		accepts: TypeOf[In](),
		emits:   TypeOf[Out](),
		handle: func(ctx context.Context, env Envelope, emit Emitter) error {
			in, err := unwrap[In](env)
			if err != nil {
				return err
			}
			out, err := fn(ctx, in)
			if err != nil {
				return err
			}
			return emit(ctx, env.WithPayload(out))
		},
	}
}

// Consume builds a terminal unit. The envelope is acked when fn succeeds and
// nacked with its error otherwise.
func Consume[In any](name string, fn func(context.Context, In) error) *Unit {
	return &Unit{
		name:    name,
		accepts: TypeOf[In](),
		handle: func(ctx context.Context, env Envelope, _ Emitter) error {
			in, err := unwrap[In](env)
			if err != nil {
				return err
			}
			if err := fn(ctx, in); err != nil {
				return err
			}
			return env.Ack(ctx)
		},
	}
}

// Produce declares a pure source of Out payloads. It has no handler; its
// envelopes enter the graph through Graph.Dispatch.
func Produce[Out any](name string) *Unit {
	return &Unit{name: name, emits: TypeOf[Out]()}
}

// Name returns the unit name.
func (u *Unit) Name() string { return u.name }

// Accepts returns the declared input payload type, or nil.
func (u *Unit) Accepts() reflect.Type { return u.accepts }

// Emits returns the declared output payload type, or nil.
func (u *Unit) Emits() reflect.Type { return u.emits }

func (u *Unit) String() string { return u.name }

// TypeOf returns the reflect.Type for T, including interface types.
// TypeOf[any]() is treated as untyped and returns nil.
func TypeOf[T any]() reflect.Type {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Interface && t.NumMethod() == 0 {
		return nil
	}
	return t
}

var envelopeType = reflect.TypeFor[Envelope]()

// unwrap hands the envelope itself to units declared over Envelope and the
// asserted payload to everyone else.
func unwrap[In any](env Envelope) (In, error) {
	if v, ok := any(env).(In); ok && reflect.TypeFor[In]() == envelopeType {
		return v, nil
	}
	return PayloadAs[In](env)
}

// compatible reports whether a producer emitting out may feed a consumer
// accepting in. Interface outputs may narrow to an implementing input; the
// concrete payload is then checked per message.
func compatible(out, in reflect.Type) bool {
	switch {
	case out == nil || in == nil:
		return true
	case in == envelopeType || out == envelopeType:
		return true
	case out.AssignableTo(in):
		return true
	case out.Kind() == reflect.Interface && in.Implements(out):
		return true
	}
	return false
}
