package core

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"sync"
)

// AckFunc signals that a message is durably consumed.
type AckFunc func(ctx context.Context) error

// NackFunc signals that a message failed; the source decides whether to
// redeliver or discard it.
type NackFunc func(ctx context.Context, reason error) error

// Envelope carries one payload through the graph together with typed
// metadata and the acknowledgment actions of whichever component created it.
//
// Envelopes are values. WithMetadata and WithPayload return copies; the
// original is never mutated, so one envelope can be handed to several
// consumers without locking. Copies share the settlement of the message they
// were derived from: the first Ack or Nack wins and every later call returns
// ErrAckAfterTerminal.
type Envelope struct {
	payload any
	meta    map[reflect.Type]any
	settle  *settlement
}

// Of wraps payload with empty metadata and no-op acknowledgment.
func Of(payload any) Envelope {
	return Envelope{payload: payload, settle: &settlement{}}
}

// NewEnvelope wraps payload with the given acknowledgment actions.
// Either action may be nil.
func NewEnvelope(payload any, ack AckFunc, nack NackFunc) Envelope {
	return Envelope{payload: payload, settle: &settlement{ack: ack, nack: nack}}
}

// Payload returns the payload.
func (e Envelope) Payload() any { return e.payload }

// WithPayload returns an envelope carrying p with the same metadata and
// acknowledgment as e.
func (e Envelope) WithPayload(p any) Envelope {
	e.payload = p
	return e
}

// WithMetadata returns a copy of e with v stored under its dynamic type,
// replacing any previous value of that type. A nil v returns e unchanged.
func (e Envelope) WithMetadata(v any) Envelope {
	if v == nil {
		return e
	}
	meta := make(map[reflect.Type]any, len(e.meta)+1)
	maps.Copy(meta, e.meta)
	meta[reflect.TypeOf(v)] = v
	e.meta = meta
	return e
}

// Metadata returns the metadata value of type T carried by e.
func Metadata[T any](e Envelope) (T, bool) {
	v, ok := e.meta[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// PayloadAs asserts the payload to T. It never converts: a payload of
// another type yields ErrTypeMismatch.
func PayloadAs[T any](e Envelope) (T, error) {
	if v, ok := e.payload.(T); ok {
		return v, nil
	}
	var zero T
	if e.payload == nil {
		switch reflect.TypeFor[T]().Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			return zero, nil
		}
	}
	return zero, fmt.Errorf("%w: payload is %T, want %s", ErrTypeMismatch, e.payload, reflect.TypeFor[T]())
}

// Ack settles the envelope successfully.
func (e Envelope) Ack(ctx context.Context) error {
	if e.settle == nil {
		return nil
	}
	return e.settle.ackOnce(ctx)
}

// Nack settles the envelope as failed with reason.
func (e Envelope) Nack(ctx context.Context, reason error) error {
	if e.settle == nil {
		return nil
	}
	return e.settle.nackOnce(ctx, reason)
}

// Settled reports whether Ack or Nack has been called on e or any copy of it.
func (e Envelope) Settled() bool {
	if e.settle == nil {
		return false
	}
	e.settle.mu.Lock()
	defer e.settle.mu.Unlock()
	return e.settle.done
}

type settlement struct {
	mu   sync.Mutex
	done bool
	ack  AckFunc
	nack NackFunc
}

func (s *settlement) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	return true
}

func (s *settlement) ackOnce(ctx context.Context) error {
	if !s.claim() {
		return ErrAckAfterTerminal
	}
	if s.ack == nil {
		return nil
	}
	return s.ack(ctx)
}

func (s *settlement) nackOnce(ctx context.Context, reason error) error {
	if !s.claim() {
		return ErrAckAfterTerminal
	}
	if s.nack == nil {
		return nil
	}
	return s.nack(ctx, reason)
}
