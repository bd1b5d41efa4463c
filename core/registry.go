package core

import "sync"

// Direction is which side of a channel a unit is bound to.
type Direction int

const (
	// Incoming binds a unit as a consumer of the channel.
	Incoming Direction = iota
	// Outgoing binds a unit as a producer onto the channel.
	Outgoing
)

func (d Direction) String() string {
	if d == Outgoing {
		return "outgoing"
	}
	return "incoming"
}

// Binding is one declared (channel, direction, unit) triple.
type Binding struct {
	Channel   string
	Direction Direction
	Unit      *Unit
}

// Registry records which units produce onto and consume from each channel.
// It only does bookkeeping: registration order is kept and duplicates are
// kept too. Validation happens in Assemble.
type Registry struct {
	mu        sync.Mutex
	bindings  []Binding
	channels  []string
	producers map[string][]*Unit
	consumers map[string][]*Unit
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		producers: make(map[string][]*Unit),
		consumers: make(map[string][]*Unit),
	}
}

// RegisterProducer declares that u produces onto channel.
func (r *Registry) RegisterProducer(channel string, u *Unit) {
	r.register(channel, Outgoing, u)
}

// RegisterConsumer declares that u consumes from channel. Consumers of one
// channel are dispatched to in registration order.
func (r *Registry) RegisterConsumer(channel string, u *Unit) {
	r.register(channel, Incoming, u)
}

// Bind registers u as a consumer of in and a producer onto out. Empty names
// are skipped, so Bind("", "data", src) declares a pure source.
func (r *Registry) Bind(in, out string, u *Unit) {
	if in != "" {
		r.RegisterConsumer(in, u)
	}
	if out != "" {
		r.RegisterProducer(out, u)
	}
}

func (r *Registry) register(channel string, d Direction, u *Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, seenP := r.producers[channel]
	_, seenC := r.consumers[channel]
	if !seenP && !seenC {
		r.channels = append(r.channels, channel)
		r.producers[channel] = nil
		r.consumers[channel] = nil
	}

	if d == Outgoing {
		r.producers[channel] = append(r.producers[channel], u)
	} else {
		r.consumers[channel] = append(r.consumers[channel], u)
	}
	r.bindings = append(r.bindings, Binding{Channel: channel, Direction: d, Unit: u})
}

// BindingsFor returns copies of the producer and consumer lists of channel.
func (r *Registry) BindingsFor(channel string) (producers, consumers []*Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.producers[channel]), clone(r.consumers[channel])
}

// Channels returns every channel name in order of first registration.
func (r *Registry) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.channels)
}

// Bindings returns every binding in registration order.
func (r *Registry) Bindings() []Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.bindings)
}

func clone[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
