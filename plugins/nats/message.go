package nats

import (
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// message adapts a JetStream message to core.Message. The subject is
// reported as the key.
type message struct {
	msg jetstream.Msg
}

func (m *message) Key() []byte   { return []byte(m.msg.Subject()) }
func (m *message) Value() []byte { return m.msg.Data() }

func (m *message) Headers() map[string]string {
	return flatten(m.msg.Headers())
}

func (m *message) Ack() error {
	if err := m.msg.Ack(); err != nil {
		return fmt.Errorf("chanflow/nats: ack: %w", err)
	}
	return nil
}

// Nack asks the server to redeliver, up to the consumer's MaxDeliver.
func (m *message) Nack() error {
	if err := m.msg.Nak(); err != nil {
		return fmt.Errorf("chanflow/nats: nack: %w", err)
	}
	return nil
}

// flatten keeps the first value of every header.
func flatten(raw map[string][]string) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	h := make(map[string]string, len(raw))
	for k, v := range raw {
		if len(v) > 0 {
			h[k] = v[0]
		}
	}
	return h
}
