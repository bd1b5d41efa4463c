package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
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

func TestBrokers(t *testing.T) {
	cfg := broker.ConnectorConfig{
		Host:  "k1",
		Port:  "9092",
		Extra: map[string]any{"brokers": "k2:9092,k3:9092"},
	}
	addrs, err := Brokers(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092", "k3:9092"}, addrs)
}

func TestOptsFromConfig(t *testing.T) {
	cfg := broker.ConnectorConfig{
		Username: "user",
		Password: "secret",
		Extra: map[string]any{
			"async":        "true",
			"batch-size":   "10",
			"max-wait":     "1s",
			"start-offset": "earliest",
		},
	}
	fns, err := optsFromConfig(cfg)
	require.NoError(t, err)

	o := apply(fns)
	assert.True(t, o.async)
	assert.Equal(t, 10, o.batchSize)
	assert.Equal(t, time.Second, o.maxWait)
	assert.Equal(t, kafka.FirstOffset, o.startOffset)
	require.NotNil(t, o.dialer)
	assert.Equal(t, plain.Mechanism{Username: "user", Password: "secret"}, o.dialer.SASLMechanism)
}

func TestOptsFromConfig_Defaults(t *testing.T) {
	fns, err := optsFromConfig(broker.ConnectorConfig{})
	require.NoError(t, err)
	assert.Empty(t, fns)

	o := apply(fns)
	assert.Nil(t, o.dialer)
	assert.Equal(t, kafka.LastOffset, o.startOffset)
}

func TestOptsFromConfig_BadOffset(t *testing.T) {
	_, err := optsFromConfig(broker.ConnectorConfig{Extra: map[string]any{"start-offset": "middle"}})
	assert.EqualError(t, err, `chanflow/kafka: unknown start offset "middle"`)
}

func TestNew_NoBrokers(t *testing.T) {
	_, err := New(nil, "")
	assert.Error(t, err)
}

func TestToHeaders(t *testing.T) {
	assert.Nil(t, toHeaders(nil))
	assert.Equal(t, []kafka.Header{{Key: "a", Value: []byte("1")}}, toHeaders(map[string]string{"a": "1"}))
}
