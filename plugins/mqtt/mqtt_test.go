package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/chanflow/broker"
)

func apply(fns []Option) options {
	o := defaults()
	for _, fn := range fns {
		fn(&o)
	}
	return o
}

func TestURL(t *testing.T) {
	assert.Equal(t, "tcp://localhost:1883", URL(broker.ConnectorConfig{Host: "localhost", Port: "1883"}))
}

func TestDefaults(t *testing.T) {
	a, b := defaults(), defaults()
	assert.NotEqual(t, a.clientID, b.clientID)
	assert.Equal(t, byte(1), a.qos)
	assert.True(t, a.cleanSession)
}

func TestOptsFromConfig(t *testing.T) {
	cfg := broker.ConnectorConfig{Extra: map[string]any{
		"client-id":     "demo",
		"qos":           "2",
		"retained":      "true",
		"clean-session": "false",
		"keep-alive":    "1m",
	}}
	fns, err := optsFromConfig(cfg)
	require.NoError(t, err)

	o := apply(fns)
	assert.Equal(t, "demo", o.clientID)
	assert.Equal(t, byte(2), o.qos)
	assert.True(t, o.retained)
	assert.False(t, o.cleanSession)
	assert.Equal(t, time.Minute, o.keepAlive)
}

func TestOptsFromConfig_QoS0(t *testing.T) {
	fns, err := optsFromConfig(broker.ConnectorConfig{Extra: map[string]any{"qos": 0}})
	require.NoError(t, err)
	assert.Equal(t, byte(0), apply(fns).qos)
}

func TestOptsFromConfig_BadQoS(t *testing.T) {
	_, err := optsFromConfig(broker.ConnectorConfig{Extra: map[string]any{"qos": 3}})
	assert.EqualError(t, err, "chanflow/mqtt: qos must be 0, 1 or 2, got 3")
}

// token is a completed or pending mqtt.Token.
type token struct {
	done chan struct{}
	err  error
}

func (t *token) Wait() bool                     { <-t.done; return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Done() <-chan struct{}          { return t.done }
func (t *token) Error() error                   { return t.err }

func TestWait(t *testing.T) {
	done := make(chan struct{})
	close(done)
	assert.EqualError(t, wait(context.Background(), &token{done: done, err: errors.New("refused")}), "refused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, wait(ctx, &token{done: make(chan struct{})}), context.Canceled)
}
