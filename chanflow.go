// Package chanflow wires named-channel pipelines to message brokers.
//
// Units are bound to channels in a Registry, validated and linked into a
// Graph, and channels declared in configuration are attached to brokers:
//
//	p, _ := chanflow.New(store)
//	p.Registry().Bind("data", "sink", process)
//	err := p.Run(ctx)
package chanflow

import (
	"context"
	"errors"
	"sync"

	"github.com/fogfish/opts"
	"github.com/rs/zerolog"

	"github.com/miladsoleymani/chanflow/broker"
	"github.com/miladsoleymani/chanflow/config"
	"github.com/miladsoleymani/chanflow/core"
)

type (
	Envelope   = core.Envelope
	Unit       = core.Unit
	Registry   = core.Registry
	Graph      = core.Graph
	Message    = core.Message
	Broker     = core.Broker
	Middleware = core.Middleware
	Store      = config.Store
)

// Pipeline ties a registry, a configuration store and the broker connectors
// together.
type Pipeline struct {
	root      string
	logger    zerolog.Logger
	graphOpts []opts.Option[core.Graph]
	connOpts  []broker.Option

	registry *core.Registry
	resolver config.Resolver
	conns    *broker.Connectors

	mu    sync.Mutex
	graph *core.Graph
}

var (
	// WithRoot sets the configuration namespace root.
	// Defaults to config.DefaultRoot.
	WithRoot = opts.ForName[Pipeline, string]("root")

	// WithLogger sets the logger handed to the graph and the connectors.
	WithLogger = opts.ForName[Pipeline, zerolog.Logger]("logger")
)

// WithGraph passes options to core.Assemble.
func WithGraph(o ...opts.Option[core.Graph]) opts.Option[Pipeline] {
	return opts.Type[Pipeline](func(p *Pipeline) error {
		p.graphOpts = append(p.graphOpts, o...)
		return nil
	})
}

// WithConnectors passes options to the broker connectors.
func WithConnectors(o ...broker.Option) opts.Option[Pipeline] {
	return opts.Type[Pipeline](func(p *Pipeline) error {
		p.connOpts = append(p.connOpts, o...)
		return nil
	})
}

// New creates a pipeline reading connector settings from store.
func New(store config.Store, options ...opts.Option[Pipeline]) (*Pipeline, error) {
	p := &Pipeline{logger: zerolog.Nop(), registry: core.NewRegistry()}
	if err := opts.Apply(p, options); err != nil {
		return nil, err
	}
	p.resolver = config.NewResolver(store, p.root)
	connOpts := append([]broker.Option{broker.WithLogger(p.logger)}, p.connOpts...)
	p.conns = broker.NewConnectors(p.resolver, connOpts...)
	return p, nil
}

// Registry returns the registry units are bound in.
func (p *Pipeline) Registry() *core.Registry { return p.registry }

// Resolver returns the connector configuration resolver.
func (p *Pipeline) Resolver() config.Resolver { return p.resolver }

// Assemble validates the registry and links the graph. It is assembled once;
// later calls return the same graph.
func (p *Pipeline) Assemble() (*core.Graph, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.graph != nil {
		return p.graph, nil
	}
	options := append([]opts.Option[core.Graph]{
		core.WithLogger(p.logger),
		core.WithExternal(p.conns),
	}, p.graphOpts...)
	g, err := core.Assemble(p.registry, options...)
	if err != nil {
		return nil, err
	}
	p.graph = g
	return g, nil
}

// Run assembles the graph, attaches the connectors and processes messages
// until ctx is cancelled or a source subscription fails.
//
// On the way out the sources stop first, the graph drains the envelopes in
// flight through the sinks, and the brokers are closed last.
func (p *Pipeline) Run(ctx context.Context) error {
	g, err := p.Assemble()
	if err != nil {
		return err
	}
	if err := g.Start(ctx); err != nil {
		return err
	}
	if err := p.conns.Attach(ctx, g); err != nil {
		return errors.Join(err, g.Close())
	}
	p.logger.Info().
		Strs("sources", g.Sources()).
		Strs("sinks", g.Sinks()).
		Msg("pipeline running")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-p.conns.Err():
	}

	p.conns.Stop()
	closeErr := g.Close()
	connErr := p.conns.Close()
	p.logger.Info().Msg("pipeline stopped")
	return errors.Join(runErr, closeErr, connErr)
}
