package core

import (
	"context"
	"errors"
	"fmt"
)

// Overflow decides what a full link queue does with one more envelope.
type Overflow int

const (
	// Block makes Dispatch wait for room. A broker subscription feeding the
	// graph stalls with it, so no more messages are pulled than the links can
	// hold.
	Block Overflow = iota
	// DropNewest nacks the incoming envelope with ErrOverflow.
	DropNewest
	// DropOldest nacks the oldest queued envelope with ErrOverflow and
	// enqueues the incoming one.
	DropOldest
)

func (o Overflow) String() string {
	switch o {
	case DropNewest:
		return "drop_newest"
	case DropOldest:
		return "drop_oldest"
	default:
		return "block"
	}
}

// Delivery identifies the link a handler is being invoked for.
type Delivery struct {
	Channel string
	Unit    string
}

type deliveryKey struct{}

// DeliveryFrom returns the link the handler running with ctx was invoked for.
func DeliveryFrom(ctx context.Context) (Delivery, bool) {
	d, ok := ctx.Value(deliveryKey{}).(Delivery)
	return d, ok
}

// link connects one channel to one consumer unit. In buffered graphs it owns
// a bounded queue drained by a single worker, which keeps envelopes from one
// producer in order for that consumer.
type link struct {
	graph   *Graph
	channel string
	unit    *Unit
	handle  HandlerFunc
	emit    Emitter
	queue   chan Envelope
}

// deliver runs the handler. A failure is isolated to this envelope: it is
// logged and the envelope nacked if the handler left it unsettled.
func (l *link) deliver(ctx context.Context, env Envelope) {
	ctx = context.WithValue(ctx, deliveryKey{}, Delivery{Channel: l.channel, Unit: l.unit.name})
	err := l.handle(ctx, env, l.emit)
	if err == nil {
		return
	}
	l.graph.logger.Warn().
		Err(err).
		Str("channel", l.channel).
		Str("unit", l.unit.name).
		Msg("consumer failed")
	if nerr := env.Nack(ctx, err); nerr != nil && !errors.Is(nerr, ErrAckAfterTerminal) {
		l.graph.logger.Error().
			Err(nerr).
			Str("channel", l.channel).
			Str("unit", l.unit.name).
			Msg("nack failed")
	}
}

func (l *link) enqueue(ctx context.Context, env Envelope, internal bool) error {
	g := l.graph
	if !g.acquire(internal) {
		g.reject(ctx, env, ErrGraphClosed)
		return ErrGraphClosed
	}

	switch g.overflow {
	case DropNewest:
		select {
		case l.queue <- env:
		default:
			g.release()
			g.reject(ctx, env, l.overflowErr())
		}
		return nil

	case DropOldest:
		for {
			select {
			case l.queue <- env:
				return nil
			default:
			}
			select {
			case old := <-l.queue:
				g.release()
				g.reject(ctx, old, l.overflowErr())
			default:
			}
		}

	default:
		select {
		case l.queue <- env:
			return nil
		case <-ctx.Done():
			g.release()
			g.reject(ctx, env, ctx.Err())
			return ctx.Err()
		}
	}
}

func (l *link) overflowErr() error {
	return fmt.Errorf("%w: channel %q, unit %q", ErrOverflow, l.channel, l.unit.name)
}

func (l *link) work(ctx context.Context, reject bool) {
	defer l.graph.workers.Done()
	for env := range l.queue {
		if reject {
			l.graph.reject(ctx, env, ErrGraphClosed)
		} else {
			l.deliver(ctx, env)
		}
		l.graph.release()
	}
}
