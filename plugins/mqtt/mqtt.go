package mqtt

import (
	"context"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/miladsoleymani/chanflow/broker"
	"github.com/miladsoleymani/chanflow/core"
)

func init() {
	broker.Register("mqtt", func(cfg broker.ConnectorConfig) (core.Broker, error) {
		opts, err := optsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return New(URL(cfg), cfg.Username, cfg.Password, opts...)
	})
}

// URL builds the server URL of a connector.
func URL(cfg broker.ConnectorConfig) string {
	return "tcp://" + cfg.Address()
}

// Broker implements core.Broker for MQTT using paho.
//
// Automatic acknowledgment is disabled: a QoS 1 or 2 message is acked only
// when the envelope carrying it is. Handlers run in order on the client's
// router goroutine, so a slow pipeline holds back further deliveries.
type Broker struct {
	client mqtt.Client
	opts   options

	mu     sync.Mutex
	closed bool
}

// New connects to url. An empty user connects anonymously.
func New(url, user, password string, fns ...Option) (*Broker, error) {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	co := mqtt.NewClientOptions().
		AddBroker(url).
		SetClientID(opts.clientID).
		SetCleanSession(opts.cleanSession).
		SetKeepAlive(opts.keepAlive).
		SetConnectTimeout(opts.connectTimeout).
		SetAutoReconnect(true).
		SetAutoAckDisabled(true)
	if user != "" {
		co.SetUsername(user).SetPassword(password)
	}

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("chanflow/mqtt: connect to %q: %w", url, token.Error())
	}
	return &Broker{client: client, opts: opts}, nil
}

func (b *Broker) Publish(ctx context.Context, topic string, msg core.Message) error {
	if b.isClosed() {
		return core.ErrBrokerClosed
	}
	token := b.client.Publish(topic, b.opts.qos, b.opts.retained, msg.Value())
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("chanflow/mqtt: publish to %q: %w", topic, err)
	}
	return nil
}

// Subscribe delivers messages on the topic filter until ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler core.Handler) error {
	if b.isClosed() {
		return core.ErrBrokerClosed
	}

	token := b.client.Subscribe(topic, b.opts.qos, func(_ mqtt.Client, m mqtt.Message) {
		_ = handler(ctx, &message{msg: m})
	})
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("chanflow/mqtt: subscribe to %q: %w", topic, err)
	}

	<-ctx.Done()
	if !b.isClosed() {
		b.client.Unsubscribe(topic).Wait()
	}
	return nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.client.Disconnect(b.opts.disconnectWait)
	return nil
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// wait blocks until the token completes or ctx ends.
func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
