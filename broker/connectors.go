package broker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/miladsoleymani/chanflow/config"
	"github.com/miladsoleymani/chanflow/core"
)

// Received is attached as metadata to every envelope a source connector
// dispatches.
type Received struct {
	ID      string
	Channel string
	Topic   string
	Key     []byte
	Headers map[string]string
	At      time.Time
}

// Option configures Connectors.
type Option func(*options)

type options struct {
	codec   core.Codec
	logger  zerolog.Logger
	factory Factory
}

func defaults() options {
	return options{
		codec:   core.JSONCodec{},
		logger:  zerolog.Nop(),
		factory: Create,
	}
}

// WithCodec sets the codec sinks use to encode payloads. Defaults to JSON.
func WithCodec(c core.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithLogger sets the connector logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFactory replaces the registry lookup used to create brokers.
func WithFactory(f Factory) Option {
	return func(o *options) { o.factory = f }
}

type endpoint struct {
	cfg    ConnectorConfig
	broker core.Broker
}

// Connectors binds channels to external brokers as declared in configuration.
//
// Passed to core.WithExternal, it declares a channel an external source when
// "<root>.source.<channel>.type" is set and an external sink when
// "<root>.sink.<channel>.type" is set. Attach then opens the brokers and
// starts the source subscriptions.
type Connectors struct {
	res  config.Resolver
	opts options

	mu      sync.RWMutex
	sinks   map[string]endpoint
	sources map[string]endpoint

	cancel context.CancelFunc
	subs   sync.WaitGroup
	errs   chan error
}

// NewConnectors returns connectors resolving settings through res.
func NewConnectors(res config.Resolver, opts ...Option) *Connectors {
	o := defaults()
	for _, fn := range opts {
		fn(&o)
	}
	return &Connectors{
		res:     res,
		opts:    o,
		sinks:   make(map[string]endpoint),
		sources: make(map[string]endpoint),
		errs:    make(chan error, 1),
	}
}

// Source implements core.External. Source connectors dispatch wire messages.
func (c *Connectors) Source(channel string) (reflect.Type, bool) {
	if !c.res.Configured(config.RoleSource, channel) {
		return nil, false
	}
	return core.TypeOf[core.Message](), true
}

// Sink implements core.External. The returned unit encodes each payload and
// publishes it to the configured topic, acking once the broker accepted it.
func (c *Connectors) Sink(channel string) (*core.Unit, bool) {
	if !c.res.Configured(config.RoleSink, channel) {
		return nil, false
	}
	return core.NewUnit("sink:"+channel, nil, nil, func(ctx context.Context, env core.Envelope, _ core.Emitter) error {
		return c.publish(ctx, channel, env)
	}), true
}

func (c *Connectors) publish(ctx context.Context, channel string, env core.Envelope) error {
	c.mu.RLock()
	ep, ok := c.sinks[channel]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: sink %q is not attached", core.ErrNoBroker, channel)
	}

	body, err := c.opts.codec.Encode(env.Payload())
	if err != nil {
		return fmt.Errorf("chanflow: encode for sink %q: %w", channel, err)
	}
	rec := core.Record{V: body}
	if rcv, ok := core.Metadata[Received](env); ok {
		rec.K = rcv.Key
		rec.H = rcv.Headers
	}
	if msg, ok := env.Payload().(core.Message); ok {
		rec.K = msg.Key()
		rec.H = msg.Headers()
	}
	if err := ep.broker.Publish(ctx, ep.cfg.Topic, rec); err != nil {
		return fmt.Errorf("chanflow: publish to %q: %w", ep.cfg.Topic, err)
	}
	return env.Ack(ctx)
}

// Attach opens a broker for every sink and source of g and starts the source
// subscriptions. It fails without leaving connections open if any connector
// is misconfigured or cannot connect.
func (c *Connectors) Attach(ctx context.Context, g *core.Graph) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return core.ErrAlreadyStarted
	}
	c.cancel = func() {}
	c.mu.Unlock()

	sinks, err := c.open(config.RoleSink, g.Sinks())
	if err == nil {
		var sources map[string]endpoint
		if sources, err = c.open(config.RoleSource, g.Sources()); err == nil {
			c.run(ctx, g, sinks, sources)
			return nil
		}
		closeAll(sinks)
	}
	c.mu.Lock()
	c.cancel = nil
	c.mu.Unlock()
	return err
}

func (c *Connectors) run(ctx context.Context, g *core.Graph, sinks, sources map[string]endpoint) {
	subCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.sinks, c.sources, c.cancel = sinks, sources, cancel
	c.mu.Unlock()

	for ch, ep := range sources {
		c.subs.Add(1)
		go c.subscribe(subCtx, g, ch, ep)
	}
}

func (c *Connectors) open(role config.Role, channels []string) (map[string]endpoint, error) {
	out := make(map[string]endpoint, len(channels))
	for _, ch := range channels {
		cfg, err := ResolveConnector(c.res, role, ch)
		if err != nil {
			closeAll(out)
			return nil, err
		}
		b, err := c.opts.factory(cfg)
		if err != nil {
			closeAll(out)
			return nil, fmt.Errorf("chanflow: %s connector for channel %q: %w", role, ch, err)
		}
		c.opts.logger.Info().
			Str("channel", ch).
			Str("role", role.String()).
			Str("type", cfg.Type).
			Str("address", cfg.Address()).
			Str("topic", cfg.Topic).
			Msg("connector opened")
		out[ch] = endpoint{cfg: cfg, broker: b}
	}
	return out, nil
}

func (c *Connectors) subscribe(ctx context.Context, g *core.Graph, channel string, ep endpoint) {
	defer c.subs.Done()
	log := c.opts.logger.With().Str("channel", channel).Str("topic", ep.cfg.Topic).Logger()

	err := ep.broker.Subscribe(ctx, ep.cfg.Topic, func(ctx context.Context, msg core.Message) error {
		env := core.NewEnvelope(msg,
			func(context.Context) error { return msg.Ack() },
			func(context.Context, error) error { return msg.Nack() },
		).WithMetadata(Received{
			ID:      uuid.NewString(),
			Channel: channel,
			Topic:   ep.cfg.Topic,
			Key:     msg.Key(),
			Headers: msg.Headers(),
			At:      time.Now(),
		})
		// A rejected envelope has already been nacked through msg.
		if err := g.Dispatch(ctx, channel, env); err != nil {
			log.Warn().Err(err).Msg("dispatch rejected")
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("subscription failed")
		select {
		case c.errs <- fmt.Errorf("chanflow: source %q: %w", channel, err):
		default:
		}
	}
}

// Err reports the first subscription that ended with an error.
func (c *Connectors) Err() <-chan error { return c.errs }

// Stop cancels the source subscriptions and waits for them to return.
// Sinks stay usable so that in-flight envelopes can drain.
func (c *Connectors) Stop() {
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	c.subs.Wait()
}

// Close stops the subscriptions and closes every broker.
func (c *Connectors) Close() error {
	c.Stop()
	c.mu.Lock()
	sinks, sources := c.sinks, c.sources
	c.sinks, c.sources = make(map[string]endpoint), make(map[string]endpoint)
	c.mu.Unlock()
	return errors.Join(closeAll(sources), closeAll(sinks))
}

func closeAll(eps map[string]endpoint) error {
	var errs []error
	for ch, ep := range eps {
		if err := ep.broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("chanflow: close connector %q: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}
