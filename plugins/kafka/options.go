package kafka

import (
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/miladsoleymani/chanflow/broker"
)

// Option configures the Kafka broker.
type Option func(*options)

type options struct {
	// Writer
	balancer  kafka.Balancer
	batchSize int
	async     bool

	// Reader
	minBytes    int
	maxBytes    int
	maxWait     time.Duration
	startOffset int64

	dialer *kafka.Dialer
}

func defaults() options {
	return options{
		balancer:    &kafka.LeastBytes{},
		batchSize:   100,
		minBytes:    1,
		maxBytes:    10e6,
		maxWait:     500 * time.Millisecond,
		startOffset: kafka.LastOffset,
	}
}

// WithBalancer sets the partition balancer for the writer.
func WithBalancer(b kafka.Balancer) Option {
	return func(o *options) { o.balancer = b }
}

// WithBatchSize sets the maximum batch size for writes.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithAsync enables asynchronous writes.
func WithAsync(async bool) Option {
	return func(o *options) { o.async = async }
}

// WithMaxBytes sets the maximum bytes per fetch.
func WithMaxBytes(n int) Option {
	return func(o *options) { o.maxBytes = n }
}

// WithMaxWait sets the maximum wait time for fetches.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) { o.maxWait = d }
}

// WithStartOffset sets where a reader without a group starts
// (kafka.FirstOffset or kafka.LastOffset).
func WithStartOffset(offset int64) Option {
	return func(o *options) { o.startOffset = offset }
}

// WithDialer sets a custom dialer for TLS/SASL connections.
func WithDialer(d *kafka.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithPlainAuth authenticates with SASL/PLAIN.
func WithPlainAuth(user, password string) Option {
	return func(o *options) {
		o.dialer = &kafka.Dialer{
			Timeout:       10 * time.Second,
			DualStack:     true,
			SASLMechanism: plain.Mechanism{Username: user, Password: password},
		}
	}
}

// extra lists the connector attributes this plugin understands.
type extra struct {
	Brokers     []string      `mapstructure:"brokers"`
	Async       bool          `mapstructure:"async"`
	BatchSize   int           `mapstructure:"batch-size"`
	MaxBytes    int           `mapstructure:"max-bytes"`
	MaxWait     time.Duration `mapstructure:"max-wait"`
	StartOffset string        `mapstructure:"start-offset"`
}

func optsFromConfig(cfg broker.ConnectorConfig) ([]Option, error) {
	var ex extra
	if err := cfg.DecodeExtra(&ex); err != nil {
		return nil, err
	}
	var opts []Option
	if cfg.Username != "" {
		opts = append(opts, WithPlainAuth(cfg.Username, cfg.Password))
	}
	if ex.Async {
		opts = append(opts, WithAsync(true))
	}
	if ex.BatchSize > 0 {
		opts = append(opts, WithBatchSize(ex.BatchSize))
	}
	if ex.MaxBytes > 0 {
		opts = append(opts, WithMaxBytes(ex.MaxBytes))
	}
	if ex.MaxWait > 0 {
		opts = append(opts, WithMaxWait(ex.MaxWait))
	}
	switch ex.StartOffset {
	case "":
	case "first", "earliest":
		opts = append(opts, WithStartOffset(kafka.FirstOffset))
	case "last", "latest":
		opts = append(opts, WithStartOffset(kafka.LastOffset))
	default:
		return nil, fmt.Errorf("chanflow/kafka: unknown start offset %q", ex.StartOffset)
	}
	return opts, nil
}

// Brokers returns the bootstrap addresses of a connector: host:port followed
// by any addresses listed in the "brokers" attribute.
func Brokers(cfg broker.ConnectorConfig) ([]string, error) {
	var ex extra
	if err := cfg.DecodeExtra(&ex); err != nil {
		return nil, err
	}
	return append([]string{cfg.Address()}, ex.Brokers...), nil
}
