package mock

import (
	"context"
	"sync"

	"github.com/miladsoleymani/chanflow/core"
)

// Broker is an in-memory core.Broker. Subscriptions match topics with
// core.DefaultMatcher, so filters may use wildcards.
type Broker struct {
	SubscribeErr error
	PublishErr   error

	mu        sync.Mutex
	published []PublishedMessage
	handlers  map[string]core.Handler
	closed    bool
	matcher   core.Matcher
}

// PublishedMessage records a message sent through Publish.
type PublishedMessage struct {
	Topic   string
	Message core.Message
}

func NewBroker() *Broker {
	return &Broker{
		handlers: make(map[string]core.Handler),
		matcher:  core.DefaultMatcher{},
	}
}

func (b *Broker) Publish(_ context.Context, topic string, msg core.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return core.ErrBrokerClosed
	}
	if b.PublishErr != nil {
		return b.PublishErr
	}
	b.published = append(b.published, PublishedMessage{Topic: topic, Message: msg})
	return nil
}

// Subscribe registers handler for the topic filter and blocks until ctx is
// cancelled.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler core.Handler) error {
	b.mu.Lock()
	if b.SubscribeErr != nil {
		err := b.SubscribeErr
		b.mu.Unlock()
		return err
	}
	b.handlers[topic] = handler
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.handlers, topic)
	b.mu.Unlock()
	return nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Subscribed reports whether a subscription is active for the topic filter.
func (b *Broker) Subscribed(filter string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[filter]
	return ok
}

// Deliver hands msg to every subscription whose filter matches topic.
func (b *Broker) Deliver(ctx context.Context, topic string, msg core.Message) error {
	b.mu.Lock()
	var hs []core.Handler
	for filter, h := range b.handlers {
		if b.matcher.Match(filter, topic) {
			hs = append(hs, h)
		}
	}
	b.mu.Unlock()
	if len(hs) == 0 {
		return core.ErrNoHandler
	}
	for _, h := range hs {
		if err := h(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Published returns all messages sent via Publish.
func (b *Broker) Published() []PublishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PublishedMessage, len(b.published))
	copy(out, b.published)
	return out
}

// IsClosed reports whether Close was called.
func (b *Broker) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
