package mock

import "sync"

// Message is a core.Message double that records settlement.
type Message struct {
	K       []byte
	V       []byte
	H       map[string]string
	AckErr  error
	NackErr error

	mu     sync.Mutex
	acks   int
	nacks  int
	settle chan struct{}
}

func (m *Message) Key() []byte                { return m.K }
func (m *Message) Value() []byte              { return m.V }
func (m *Message) Headers() map[string]string { return m.H }

func (m *Message) Ack() error {
	m.mu.Lock()
	m.acks++
	m.notify()
	m.mu.Unlock()
	return m.AckErr
}

func (m *Message) Nack() error {
	m.mu.Lock()
	m.nacks++
	m.notify()
	m.mu.Unlock()
	return m.NackErr
}

// Acked reports whether Ack was called.
func (m *Message) Acked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acks > 0
}

// Nacked reports whether Nack was called.
func (m *Message) Nacked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nacks > 0
}

// Settlements returns how many times Ack and Nack were called.
func (m *Message) Settlements() (acks, nacks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acks, m.nacks
}

// Settled is closed on the first Ack or Nack.
func (m *Message) Settled() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settle == nil {
		m.settle = make(chan struct{})
		if m.acks+m.nacks > 0 {
			close(m.settle)
		}
	}
	return m.settle
}

func (m *Message) notify() {
	if m.settle == nil {
		m.settle = make(chan struct{})
	}
	if m.acks+m.nacks == 1 {
		close(m.settle)
	}
}
