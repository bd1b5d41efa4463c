package core

import (
	"context"
	"sync"
)

// fanOut derives n envelopes from src, one per recipient. Each derived
// envelope settles independently. src is acked once all n are acked and
// nacked as soon as any one is nacked; later settlements of the siblings are
// still accepted but no longer reach src.
func fanOut(src Envelope, n int) []Envelope {
	if n == 1 {
		return []Envelope{src}
	}
	agg := &sharedAck{src: src, remaining: n}
	out := make([]Envelope, n)
	for i := range out {
		out[i] = Envelope{
			payload: src.payload,
			meta:    src.meta,
			settle:  &settlement{ack: agg.ack, nack: agg.nack},
		}
	}
	return out
}

type sharedAck struct {
	mu        sync.Mutex
	src       Envelope
	remaining int
	failed    bool
}

func (a *sharedAck) ack(ctx context.Context) error {
	a.mu.Lock()
	if a.failed {
		a.mu.Unlock()
		return nil
	}
	a.remaining--
	last := a.remaining == 0
	a.mu.Unlock()

	if !last {
		return nil
	}
	return a.src.Ack(ctx)
}

func (a *sharedAck) nack(ctx context.Context, reason error) error {
	a.mu.Lock()
	if a.failed {
		a.mu.Unlock()
		return nil
	}
	a.failed = true
	a.mu.Unlock()
	return a.src.Nack(ctx, reason)
}
