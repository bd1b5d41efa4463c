package rabbitmq

import (
	"github.com/miladsoleymani/chanflow/broker"
)

// Option configures the RabbitMQ broker.
type Option func(*options)

type options struct {
	vhost string

	exchange     string
	exchangeType string
	routingKey   string

	durable    bool
	autoDelete bool
	exclusive  bool

	prefetchCount int
	requeueOnNack bool
}

func defaults() options {
	return options{
		exchangeType:  "direct",
		durable:       true,
		prefetchCount: 10,
		requeueOnNack: true,
	}
}

// WithVHost selects the virtual host.
func WithVHost(vhost string) Option {
	return func(o *options) { o.vhost = vhost }
}

// WithExchange publishes through, and binds queues to, the named exchange.
func WithExchange(name, kind string) Option {
	return func(o *options) {
		o.exchange = name
		o.exchangeType = kind
	}
}

// WithRoutingKey overrides the topic as routing key.
func WithRoutingKey(key string) Option {
	return func(o *options) { o.routingKey = key }
}

// WithDurable controls whether queues survive broker restart.
func WithDurable(d bool) Option {
	return func(o *options) { o.durable = d }
}

// WithAutoDelete causes the queue to be deleted when the last consumer disconnects.
func WithAutoDelete(d bool) Option {
	return func(o *options) { o.autoDelete = d }
}

// WithPrefetchCount sets how many unacked deliveries the server allows.
// It bounds how far the pipeline can fall behind the queue.
func WithPrefetchCount(n int) Option {
	return func(o *options) { o.prefetchCount = n }
}

// WithRequeueOnNack controls whether nacked messages are requeued.
func WithRequeueOnNack(requeue bool) Option {
	return func(o *options) { o.requeueOnNack = requeue }
}

type extra struct {
	VHost         string `mapstructure:"vhost"`
	Exchange      string `mapstructure:"exchange"`
	ExchangeType  string `mapstructure:"exchange-type"`
	RoutingKey    string `mapstructure:"routing-key"`
	Durable       *bool  `mapstructure:"durable"`
	AutoDelete    bool   `mapstructure:"auto-delete"`
	PrefetchCount int    `mapstructure:"prefetch-count"`
	Requeue       *bool  `mapstructure:"requeue"`
}

func optsFromConfig(cfg broker.ConnectorConfig) ([]Option, error) {
	var ex extra
	if err := cfg.DecodeExtra(&ex); err != nil {
		return nil, err
	}
	var opts []Option
	if ex.VHost != "" {
		opts = append(opts, WithVHost(ex.VHost))
	}
	if ex.Exchange != "" {
		kind := ex.ExchangeType
		if kind == "" {
			kind = "direct"
		}
		opts = append(opts, WithExchange(ex.Exchange, kind))
	}
	if ex.RoutingKey != "" {
		opts = append(opts, WithRoutingKey(ex.RoutingKey))
	}
	if ex.Durable != nil {
		opts = append(opts, WithDurable(*ex.Durable))
	}
	if ex.AutoDelete {
		opts = append(opts, WithAutoDelete(true))
	}
	if ex.PrefetchCount > 0 {
		opts = append(opts, WithPrefetchCount(ex.PrefetchCount))
	}
	if ex.Requeue != nil {
		opts = append(opts, WithRequeueOnNack(*ex.Requeue))
	}
	return opts, nil
}
