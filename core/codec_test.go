package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/chanflow/core"
)

type reading struct {
	Sensor string  `json:"sensor"`
	Value  float64 `json:"value"`
}

func TestJSONCodec_Encode(t *testing.T) {
	c := core.JSONCodec{}

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"bytes pass through", []byte("raw"), "raw"},
		{"string pass through", "42", "42"},
		{"wire message body", core.Record{V: []byte("body")}, "body"},
		{"int", 42, "42"},
		{"struct", reading{Sensor: "t1", Value: 1.5}, `{"sensor":"t1","value":1.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := c.Encode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))
		})
	}
}

func TestDecode(t *testing.T) {
	results := &collector[reading]{}
	r := core.NewRegistry()
	r.RegisterProducer("raw", core.Produce[core.Message]("broker"))
	r.Bind("raw", "readings", core.Decode[reading]("decode", nil))
	r.RegisterConsumer("readings", results.unit("store"))
	g, err := core.Assemble(r)
	require.NoError(t, err)

	ok, bad := &acks{}, &acks{}
	ctx := context.Background()
	require.NoError(t, g.Dispatch(ctx, "raw", ok.envelope(core.Record{V: []byte(`{"sensor":"t1","value":2}`)})))
	require.NoError(t, g.Dispatch(ctx, "raw", bad.envelope(core.Record{V: []byte(`not json`)})))

	assert.Equal(t, []reading{{Sensor: "t1", Value: 2}}, results.all())
	acked, _ := ok.counts()
	assert.Equal(t, 1, acked)
	_, nacked := bad.counts()
	assert.Equal(t, 1, nacked)
}
