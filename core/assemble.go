package core

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/fogfish/opts"
	"github.com/rs/zerolog"
)

// External tells the assembler which channels are attached to brokers.
//
// Source reports whether an external source feeds channel, and the payload
// type it emits. Sink returns the unit that drains channel to an external
// sink; it is appended after the registered consumers.
type External interface {
	Source(channel string) (reflect.Type, bool)
	Sink(channel string) (*Unit, bool)
}

type noExternal struct{}

func (noExternal) Source(string) (reflect.Type, bool) { return nil, false }
func (noExternal) Sink(string) (*Unit, bool)          { return nil, false }

var (
	// WithBuffer sets the queue size of every link. Zero, the default, delivers
	// inline in the dispatching goroutine.
	WithBuffer = opts.ForName[Graph, int]("buffer")

	// WithOverflow sets what a full link queue does with a new envelope.
	WithOverflow = opts.ForName[Graph, Overflow]("overflow")

	// WithLogger sets the graph logger. The default discards everything.
	WithLogger = opts.ForName[Graph, zerolog.Logger]("logger")
)

// WithExternal attaches broker connectors to the assembler.
func WithExternal(ext External) opts.Option[Graph] {
	return opts.Type[Graph](func(g *Graph) error {
		if ext == nil {
			return fmt.Errorf("chanflow: nil external")
		}
		g.external = ext
		return nil
	})
}

// WithMiddleware wraps every consumer handler. Given [A, B], the call order
// is A -> B -> handler.
func WithMiddleware(mws ...Middleware) opts.Option[Graph] {
	return opts.Type[Graph](func(g *Graph) error {
		g.middleware = append(g.middleware, mws...)
		return nil
	})
}

type endpoint struct {
	name string
	typ  reflect.Type
}

// Assemble validates the bindings in r and links them into a Graph.
//
// Channels are checked in sorted order and every violation is reported,
// joined, each as an *AssemblyError naming the channel and the rule. The same
// registry always yields the same graph or the same errors.
func Assemble(r *Registry, options ...opts.Option[Graph]) (*Graph, error) {
	g := &Graph{
		logger:    zerolog.Nop(),
		external:  noExternal{},
		producers: make(map[string][]*Unit),
		links:     make(map[string][]*link),
		outputs:   make(map[*Unit][]string),
	}
	if err := opts.Apply(g, options); err != nil {
		return nil, fmt.Errorf("chanflow: graph options: %w", err)
	}
	if g.buffer < 0 {
		return nil, fmt.Errorf("chanflow: negative link buffer %d", g.buffer)
	}
	g.idle = sync.NewCond(&g.mu)

	names := r.Channels()
	sort.Strings(names)

	var errs []error
	for _, ch := range names {
		prods, cons := r.BindingsFor(ch)
		if chErrs := g.link(ch, prods, cons); len(chErrs) > 0 {
			errs = append(errs, chErrs...)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	g.channels = names
	g.logger.Debug().
		Strs("channels", names).
		Strs("sources", g.sources).
		Strs("sinks", g.sinks).
		Msg("graph assembled")
	return g, nil
}

func (g *Graph) link(ch string, prods, cons []*Unit) []error {
	var errs []error
	fail := func(rule error, format string, args ...any) {
		errs = append(errs, &AssemblyError{Channel: ch, Rule: rule, Detail: fmt.Sprintf(format, args...)})
	}

	emits := make([]endpoint, 0, len(prods)+1)
	for _, p := range prods {
		emits = append(emits, endpoint{name: p.name, typ: p.emits})
	}
	srcType, external := g.external.Source(ch)
	if external {
		emits = append(emits, endpoint{name: "external source", typ: srcType})
	}
	sink, hasSink := g.external.Sink(ch)
	if hasSink {
		cons = append(cons, sink)
	}

	switch {
	case len(emits) == 0:
		fail(ErrUnsatisfiedConsumer, "consumed by %v but no producer is registered and no external source is configured", cons)
	case len(cons) == 0:
		fail(ErrUnconsumedProducer, "produced by %v but no consumer is registered and no external sink is configured", prods)
	}
	for _, u := range duplicates(prods) {
		fail(ErrDuplicateBinding, "unit %q is bound more than once as %s", u.name, Outgoing)
	}
	for _, u := range duplicates(cons) {
		fail(ErrDuplicateBinding, "unit %q is bound more than once as %s", u.name, Incoming)
	}
	for _, c := range cons {
		if c.handle == nil {
			fail(ErrNoHandler, "unit %q is bound as a consumer but has no handler", c.name)
		}
		for _, e := range emits {
			if !compatible(e.typ, c.accepts) {
				fail(ErrTypeMismatch, "%s emits %s, %s accepts %s", e.name, e.typ, c.name, c.accepts)
			}
		}
	}
	if len(errs) > 0 {
		return errs
	}

	if external {
		g.sources = append(g.sources, ch)
	}
	if hasSink {
		g.sinks = append(g.sinks, ch)
	}
	g.producers[ch] = prods
	for _, p := range prods {
		g.outputs[p] = append(g.outputs[p], ch)
	}
	links := make([]*link, 0, len(cons))
	for _, c := range cons {
		l := &link{
			graph:   g,
			channel: ch,
			unit:    c,
			handle:  applyMiddleware(c.handle, g.middleware),
			emit:    g.emitter(c),
		}
		if g.buffer > 0 {
			l.queue = make(chan Envelope, g.buffer)
		}
		links = append(links, l)
	}
	g.links[ch] = links
	return nil
}

func duplicates(units []*Unit) []*Unit {
	seen := make(map[*Unit]int, len(units))
	var out []*Unit
	for _, u := range units {
		seen[u]++
		if seen[u] == 2 {
			out = append(out, u)
		}
	}
	return out
}

// applyMiddleware wraps a handler with middleware in reverse order.
// Given middleware [A, B, C], the call order is A -> B -> C -> handler.
func applyMiddleware(h HandlerFunc, mws []Middleware) HandlerFunc {
	if h == nil {
		return nil
	}
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
