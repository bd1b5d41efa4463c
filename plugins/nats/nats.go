package nats

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/miladsoleymani/chanflow/broker"
	"github.com/miladsoleymani/chanflow/core"
)

func init() {
	broker.Register("nats", func(cfg broker.ConnectorConfig) (core.Broker, error) {
		opts, err := optsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return New(URL(cfg), cfg.Username, cfg.Password, cfg.Group, opts...)
	})
}

// URL builds the server URL of a connector.
func URL(cfg broker.ConnectorConfig) string {
	return "nats://" + cfg.Address()
}

// Broker implements core.Broker for NATS JetStream.
//
// Each Subscribe creates (or updates) a stream named after the subject and a
// durable consumer with explicit acks. A nacked message is redelivered by the
// server. Close stops the consumers and closes the connection.
type Broker struct {
	conn  *nats.Conn
	js    jetstream.JetStream
	group string
	opts  options

	mu     sync.Mutex
	closed bool
	subs   []jetstream.ConsumeContext
}

// New connects to url. An empty user connects anonymously.
func New(url, user, password, group string, fns ...Option) (*Broker, error) {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	connOpts := []nats.Option{nats.Name(opts.name)}
	if user != "" {
		connOpts = append(connOpts, nats.UserInfo(user, password))
	}
	nc, err := nats.Connect(url, connOpts...)
	if err != nil {
		return nil, fmt.Errorf("chanflow/nats: connect to %q: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("chanflow/nats: init jetstream: %w", err)
	}

	return &Broker{conn: nc, js: js, group: group, opts: opts}, nil
}

func (b *Broker) Publish(ctx context.Context, topic string, msg core.Message) error {
	if b.isClosed() {
		return core.ErrBrokerClosed
	}

	nm := nats.NewMsg(topic)
	nm.Data = msg.Value()
	for k, v := range msg.Headers() {
		nm.Header.Set(k, v)
	}
	if _, err := b.js.PublishMsg(ctx, nm); err != nil {
		return fmt.Errorf("chanflow/nats: publish to %q: %w", topic, err)
	}
	return nil
}

// Subscribe consumes topic until ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler core.Handler) error {
	if b.isClosed() {
		return core.ErrBrokerClosed
	}

	streamName := StreamName(topic)
	stream, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{topic},
		MaxMsgs:   b.opts.maxMsgs,
		MaxAge:    b.opts.maxAge,
		Replicas:  b.opts.replicas,
		Retention: b.opts.retention,
		Storage:   b.opts.storage,
	})
	if err != nil {
		return fmt.Errorf("chanflow/nats: create stream %q: %w", streamName, err)
	}

	durable := b.group
	if durable == "" {
		durable = "chanflow-" + streamName
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:    durable,
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    b.opts.ackWait,
		MaxDeliver: b.opts.maxDeliver,
	})
	if err != nil {
		return fmt.Errorf("chanflow/nats: create consumer %q: %w", durable, err)
	}

	cc, err := cons.Consume(func(jsMsg jetstream.Msg) {
		if err := handler(ctx, &message{msg: jsMsg}); err != nil {
			_ = jsMsg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("chanflow/nats: consume %q: %w", durable, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, cc)
	b.mu.Unlock()

	<-ctx.Done()
	cc.Stop()
	return nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for _, s := range b.subs {
		s.Stop()
	}
	b.conn.Close()
	return nil
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

var streamNameReplacer = strings.NewReplacer(".", "-", "*", "-", ">", "-")

// StreamName derives a valid stream name from a subject pattern.
func StreamName(subject string) string {
	return streamNameReplacer.Replace(subject)
}
