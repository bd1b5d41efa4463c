package mqtt

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// message adapts a paho message to core.Message. The topic is reported as
// the key; MQTT 3.1.1 carries no headers.
type message struct {
	msg mqtt.Message
}

func (m *message) Key() []byte                { return []byte(m.msg.Topic()) }
func (m *message) Value() []byte              { return m.msg.Payload() }
func (m *message) Headers() map[string]string { return nil }

// Ack sends the PUBACK/PUBREC for QoS 1 and 2 messages.
func (m *message) Ack() error {
	m.msg.Ack()
	return nil
}

// Nack withholds the acknowledgment. A persistent session gets the message
// redelivered on reconnect.
func (m *message) Nack() error {
	return nil
}
