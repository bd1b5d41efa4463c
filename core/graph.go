package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Graph is the assembled, immutable dispatch graph. It is safe for
// concurrent use.
//
// An envelope dispatched onto a channel is delivered to every consumer of
// that channel in registration order. Each consumer receives its own copy;
// the original is acked once all copies are acked and nacked on the first
// nack. Units that produce emit onto all of their outgoing channels.
type Graph struct {
	buffer     int
	overflow   Overflow
	logger     zerolog.Logger
	external   External
	middleware []Middleware

	channels  []string
	producers map[string][]*Unit
	links     map[string][]*link
	outputs   map[*Unit][]string
	sources   []string
	sinks     []string

	mu        sync.Mutex
	idle      *sync.Cond
	inflight  int
	started   bool
	closing   bool
	closed    bool
	workers   sync.WaitGroup
	closeOnce sync.Once
}

// Dispatch delivers env to every consumer of channel.
//
// Consumer failures are isolated and reported through nack, never returned.
// The returned error covers envelopes the graph could not accept: an
// unknown channel, a closed graph, or ctx ending while blocked on a full
// queue. Those envelopes are nacked before Dispatch returns.
func (g *Graph) Dispatch(ctx context.Context, channel string, env Envelope) error {
	return g.dispatch(ctx, channel, env, false)
}

func (g *Graph) dispatch(ctx context.Context, channel string, env Envelope, internal bool) error {
	links, ok := g.links[channel]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
		g.reject(ctx, env, err)
		return err
	}
	envs := fanOut(env, len(links))

	if g.buffer == 0 {
		if !g.acquire(internal) {
			for _, e := range envs {
				g.reject(ctx, e, ErrGraphClosed)
			}
			return ErrGraphClosed
		}
		defer g.release()
		for i, l := range links {
			l.deliver(ctx, envs[i])
		}
		return nil
	}

	var errs []error
	for i, l := range links {
		if err := l.enqueue(ctx, envs[i], internal); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// emitter returns the Emitter handed to u's handler. Outputs are looked up
// per call because they are only complete once assembly has finished.
func (g *Graph) emitter(u *Unit) Emitter {
	return func(ctx context.Context, env Envelope) error {
		outs := g.outputs[u]
		if len(outs) == 0 {
			return fmt.Errorf("%w: %q", ErrNoRoute, u.name)
		}
		envs := fanOut(env, len(outs))
		var errs []error
		for i, ch := range outs {
			if err := g.dispatch(ctx, ch, envs[i], true); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// Start launches one worker per link of a buffered graph and returns.
// Workers run with a context detached from ctx's cancellation so that Close
// can drain queued envelopes.
func (g *Graph) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return ErrGraphClosed
	}
	if g.started {
		return ErrAlreadyStarted
	}
	g.started = true
	g.startWorkers(context.WithoutCancel(ctx), false)
	g.logger.Info().Int("channels", len(g.channels)).Int("buffer", g.buffer).Msg("graph started")
	return nil
}

// Run starts the graph, blocks until ctx is done, then closes it.
func (g *Graph) Run(ctx context.Context) error {
	if err := g.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return g.Close()
}

// Close stops accepting envelopes from Dispatch, waits for every queued and
// in-flight envelope to be handled, and stops the workers. Envelopes queued on
// a graph that was never started are nacked with ErrGraphClosed.
func (g *Graph) Close() error {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		g.closing = true
		if !g.started {
			g.started = true
			g.startWorkers(context.Background(), true)
		}
		for g.inflight > 0 {
			g.idle.Wait()
		}
		g.closed = true
		g.mu.Unlock()

		for _, links := range g.links {
			for _, l := range links {
				if l.queue != nil {
					close(l.queue)
				}
			}
		}
		g.workers.Wait()
		g.logger.Info().Msg("graph closed")
	})
	return nil
}

func (g *Graph) startWorkers(ctx context.Context, reject bool) {
	if g.buffer == 0 {
		return
	}
	for _, links := range g.links {
		for _, l := range links {
			g.workers.Add(1)
			go l.work(ctx, reject)
		}
	}
}

// acquire counts one envelope in flight. External dispatches are refused
// once Close has begun; emits from running handlers are accepted until the
// graph is fully closed so that in-flight work drains.
func (g *Graph) acquire(internal bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || (g.closing && !internal) {
		return false
	}
	g.inflight++
	return true
}

func (g *Graph) release() {
	g.mu.Lock()
	g.inflight--
	if g.inflight == 0 {
		g.idle.Broadcast()
	}
	g.mu.Unlock()
}

func (g *Graph) reject(ctx context.Context, env Envelope, reason error) {
	if err := env.Nack(ctx, reason); err != nil && !errors.Is(err, ErrAckAfterTerminal) {
		g.logger.Error().Err(err).AnErr("reason", reason).Msg("nack failed")
	}
}

// Channels returns every channel in sorted order.
func (g *Graph) Channels() []string { return clone(g.channels) }

// Producers returns the registered producers of channel.
func (g *Graph) Producers(channel string) []*Unit { return clone(g.producers[channel]) }

// Consumers returns the consumers of channel in dispatch order, including an
// attached external sink.
func (g *Graph) Consumers(channel string) []*Unit {
	links := g.links[channel]
	out := make([]*Unit, len(links))
	for i, l := range links {
		out[i] = l.unit
	}
	return out
}

// Sources returns the channels fed by an external source.
func (g *Graph) Sources() []string { return clone(g.sources) }

// Sinks returns the channels drained by an external sink.
func (g *Graph) Sinks() []string { return clone(g.sinks) }
