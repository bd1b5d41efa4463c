package nats

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/miladsoleymani/chanflow/broker"
)

// Option configures the NATS broker.
type Option func(*options)

type options struct {
	name string

	// Stream
	maxMsgs   int64
	maxAge    time.Duration
	replicas  int
	retention jetstream.RetentionPolicy
	storage   jetstream.StorageType

	// Consumer
	ackWait    time.Duration
	maxDeliver int
}

func defaults() options {
	return options{
		name:       "chanflow",
		maxMsgs:    -1,
		replicas:   1,
		retention:  jetstream.LimitsPolicy,
		storage:    jetstream.FileStorage,
		ackWait:    30 * time.Second,
		maxDeliver: 5,
	}
}

// WithName sets the client connection name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithMaxMessages sets the maximum number of messages per stream.
func WithMaxMessages(n int64) Option {
	return func(o *options) { o.maxMsgs = n }
}

// WithMaxAge sets the maximum age of messages in the stream.
func WithMaxAge(d time.Duration) Option {
	return func(o *options) { o.maxAge = d }
}

// WithReplicas sets the stream replication factor.
func WithReplicas(n int) Option {
	return func(o *options) { o.replicas = n }
}

// WithRetention sets the stream retention policy.
func WithRetention(r jetstream.RetentionPolicy) Option {
	return func(o *options) { o.retention = r }
}

// WithStorage sets the stream storage type (file or memory).
func WithStorage(s jetstream.StorageType) Option {
	return func(o *options) { o.storage = s }
}

// WithAckWait sets how long the server waits for an ack before redelivering.
func WithAckWait(d time.Duration) Option {
	return func(o *options) { o.ackWait = d }
}

// WithMaxDeliver sets the maximum number of delivery attempts.
func WithMaxDeliver(n int) Option {
	return func(o *options) { o.maxDeliver = n }
}

// extra lists the connector attributes this plugin understands, e.g.
// "chanflow.messaging.source.data.max-deliver=3".
type extra struct {
	MaxMessages int64         `mapstructure:"max-messages"`
	MaxAge      time.Duration `mapstructure:"max-age"`
	Replicas    int           `mapstructure:"replicas"`
	Storage     string        `mapstructure:"storage"`
	AckWait     time.Duration `mapstructure:"ack-wait"`
	MaxDeliver  int           `mapstructure:"max-deliver"`
}

func optsFromConfig(cfg broker.ConnectorConfig) ([]Option, error) {
	var ex extra
	if err := cfg.DecodeExtra(&ex); err != nil {
		return nil, err
	}
	opts := []Option{WithName("chanflow-" + cfg.Role.String() + "-" + cfg.Channel)}
	if ex.MaxMessages != 0 {
		opts = append(opts, WithMaxMessages(ex.MaxMessages))
	}
	if ex.MaxAge > 0 {
		opts = append(opts, WithMaxAge(ex.MaxAge))
	}
	if ex.Replicas > 0 {
		opts = append(opts, WithReplicas(ex.Replicas))
	}
	switch ex.Storage {
	case "":
	case "file":
		opts = append(opts, WithStorage(jetstream.FileStorage))
	case "memory":
		opts = append(opts, WithStorage(jetstream.MemoryStorage))
	default:
		return nil, fmt.Errorf("chanflow/nats: unknown storage %q", ex.Storage)
	}
	if ex.AckWait > 0 {
		opts = append(opts, WithAckWait(ex.AckWait))
	}
	if ex.MaxDeliver != 0 {
		opts = append(opts, WithMaxDeliver(ex.MaxDeliver))
	}
	return opts, nil
}
