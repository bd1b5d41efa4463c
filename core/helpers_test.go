package core_test

import (
	"context"
	"reflect"
	"sync"

	"github.com/miladsoleymani/chanflow/core"
)

// acks records the acknowledgment of envelopes it creates.
type acks struct {
	mu      sync.Mutex
	acked   int
	nacked  int
	reasons []error
}

func (a *acks) envelope(payload any) core.Envelope {
	return core.NewEnvelope(payload,
		func(context.Context) error {
			a.mu.Lock()
			a.acked++
			a.mu.Unlock()
			return nil
		},
		func(_ context.Context, reason error) error {
			a.mu.Lock()
			a.nacked++
			a.reasons = append(a.reasons, reason)
			a.mu.Unlock()
			return nil
		},
	)
}

func (a *acks) counts() (acked, nacked int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acked, a.nacked
}

func (a *acks) reason(i int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i >= len(a.reasons) {
		return nil
	}
	return a.reasons[i]
}

// collector is the explicit state of a sink under test.
type collector[T any] struct {
	mu    sync.Mutex
	items []T
}

func (c *collector[T]) add(v T) {
	c.mu.Lock()
	c.items = append(c.items, v)
	c.mu.Unlock()
}

func (c *collector[T]) all() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *collector[T]) unit(name string) *core.Unit {
	return core.Consume(name, func(_ context.Context, v T) error {
		c.add(v)
		return nil
	})
}

type fakeExternal struct {
	sources map[string]reflect.Type
	sinks   map[string]*core.Unit
}

func (f fakeExternal) Source(ch string) (reflect.Type, bool) {
	t, ok := f.sources[ch]
	return t, ok
}

func (f fakeExternal) Sink(ch string) (*core.Unit, bool) {
	u, ok := f.sinks[ch]
	return u, ok
}
