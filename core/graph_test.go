package core_test

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/chanflow/core"
)

func increment(_ context.Context, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

// incrementPipeline wires feed -> "in" -> process -> "data" -> sink.
func incrementPipeline(results *collector[int]) *core.Registry {
	r := core.NewRegistry()
	r.RegisterProducer("in", core.Produce[string]("feed"))
	r.Bind("in", "data", core.Transform("process", increment))
	r.RegisterConsumer("data", results.unit("sink"))
	return r
}

func TestGraph_IncrementScenario(t *testing.T) {
	results := &collector[int]{}
	g, err := core.Assemble(incrementPipeline(results))
	require.NoError(t, err)

	rec := &acks{}
	require.NoError(t, g.Dispatch(context.Background(), "in", rec.envelope("41")))

	assert.Equal(t, []int{42}, results.all())
	acked, nacked := rec.counts()
	assert.Equal(t, 1, acked, "the source is acked once the sink acks the derived envelope")
	assert.Equal(t, 0, nacked)
}

func TestGraph_TransformFailureNacksSource(t *testing.T) {
	results := &collector[int]{}
	g, err := core.Assemble(incrementPipeline(results))
	require.NoError(t, err)

	rec := &acks{}
	require.NoError(t, g.Dispatch(context.Background(), "in", rec.envelope("forty-one")))

	assert.Empty(t, results.all())
	acked, nacked := rec.counts()
	assert.Equal(t, 0, acked)
	assert.Equal(t, 1, nacked)
	var numErr *strconv.NumError
	assert.ErrorAs(t, rec.reason(0), &numErr)
}

func TestGraph_PayloadTypeMismatchNacks(t *testing.T) {
	results := &collector[int]{}
	r := core.NewRegistry()
	r.RegisterProducer("data", core.Produce[any]("untyped"))
	r.RegisterConsumer("data", results.unit("sink"))
	g, err := core.Assemble(r)
	require.NoError(t, err)

	rec := &acks{}
	require.NoError(t, g.Dispatch(context.Background(), "data", rec.envelope("not an int")))
	assert.Empty(t, results.all())
	assert.ErrorIs(t, rec.reason(0), core.ErrTypeMismatch)
}

func TestGraph_BroadcastInRegistrationOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	consumer := func(name string) *core.Unit {
		return core.Consume(name, func(_ context.Context, v int) error {
			mu.Lock()
			order = append(order, name+":"+strconv.Itoa(v))
			mu.Unlock()
			return nil
		})
	}

	r := core.NewRegistry()
	r.RegisterProducer("out", core.Produce[int]("p1"))
	r.RegisterProducer("out", core.Produce[int]("p2"))
	r.RegisterConsumer("out", consumer("c"))
	r.RegisterConsumer("out", consumer("a"))
	r.RegisterConsumer("out", consumer("b"))
	g, err := core.Assemble(r)
	require.NoError(t, err)

	rec := &acks{}
	require.NoError(t, g.Dispatch(context.Background(), "out", rec.envelope(1)))
	require.NoError(t, g.Dispatch(context.Background(), "out", rec.envelope(2)))

	assert.Equal(t, []string{"c:1", "a:1", "b:1", "c:2", "a:2", "b:2"}, order)
	acked, nacked := rec.counts()
	assert.Equal(t, 2, acked, "each source envelope is acked exactly once after all consumers ack")
	assert.Equal(t, 0, nacked)
}

func TestGraph_BroadcastIsolation(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	var secondSawSettled bool
	var secondPayload any
	r := core.NewRegistry()
	r.RegisterProducer("out", core.Produce[string]("p"))
	r.RegisterConsumer("out", core.NewUnit("first", nil, nil, func(ctx context.Context, env core.Envelope, _ core.Emitter) error {
		return env.Nack(ctx, boom)
	}))
	r.RegisterConsumer("out", core.NewUnit("second", nil, nil, func(ctx context.Context, env core.Envelope, _ core.Emitter) error {
		secondSawSettled = env.Settled()
		secondPayload = env.Payload()
		return env.Ack(ctx)
	}))
	g, err := core.Assemble(r)
	require.NoError(t, err)

	rec := &acks{}
	require.NoError(t, g.Dispatch(ctx, "out", rec.envelope("hello")))

	assert.False(t, secondSawSettled, "a sibling's nack must not settle this consumer's envelope")
	assert.Equal(t, "hello", secondPayload)
	acked, nacked := rec.counts()
	assert.Equal(t, 0, acked)
	assert.Equal(t, 1, nacked)
	assert.ErrorIs(t, rec.reason(0), boom)
}

func TestGraph_AckOnOneCopyLeavesOtherMetadata(t *testing.T) {
	type mark string
	var second []core.Envelope

	r := core.NewRegistry()
	r.RegisterProducer("out", core.Produce[string]("p"))
	r.RegisterConsumer("out", core.NewUnit("first", nil, nil, func(ctx context.Context, env core.Envelope, _ core.Emitter) error {
		env = env.WithMetadata(mark("seen by first"))
		return env.Ack(ctx)
	}))
	r.RegisterConsumer("out", core.NewUnit("second", nil, nil, func(ctx context.Context, env core.Envelope, _ core.Emitter) error {
		second = append(second, env)
		return env.Ack(ctx)
	}))
	g, err := core.Assemble(r)
	require.NoError(t, err)

	require.NoError(t, g.Dispatch(context.Background(), "out", core.Of("payload")))

	require.Len(t, second, 1)
	_, ok := core.Metadata[mark](second[0])
	assert.False(t, ok)
	assert.Equal(t, "payload", second[0].Payload())
}

func TestGraph_EmitToEveryOutgoingChannel(t *testing.T) {
	left, right := &collector[int]{}, &collector[int]{}
	split := core.Transform("split", func(_ context.Context, v int) (int, error) { return v * 10, nil })

	r := core.NewRegistry()
	r.RegisterProducer("in", core.Produce[int]("src"))
	r.RegisterConsumer("in", split)
	r.RegisterProducer("left", split)
	r.RegisterProducer("right", split)
	r.RegisterConsumer("left", left.unit("l"))
	r.RegisterConsumer("right", right.unit("r"))
	g, err := core.Assemble(r)
	require.NoError(t, err)

	rec := &acks{}
	require.NoError(t, g.Dispatch(context.Background(), "in", rec.envelope(4)))
	assert.Equal(t, []int{40}, left.all())
	assert.Equal(t, []int{40}, right.all())
	acked, _ := rec.counts()
	assert.Equal(t, 1, acked)
}

func TestGraph_EmitWithoutOutgoingChannel(t *testing.T) {
	r := core.NewRegistry()
	r.RegisterProducer("in", core.Produce[int]("src"))
	r.RegisterConsumer("in", core.Transform("dangling", func(_ context.Context, v int) (int, error) { return v, nil }))
	g, err := core.Assemble(r)
	require.NoError(t, err)

	rec := &acks{}
	require.NoError(t, g.Dispatch(context.Background(), "in", rec.envelope(1)))
	assert.ErrorIs(t, rec.reason(0), core.ErrNoRoute)
}

func TestGraph_UnknownChannel(t *testing.T) {
	g, err := core.Assemble(incrementPipeline(&collector[int]{}))
	require.NoError(t, err)

	rec := &acks{}
	err = g.Dispatch(context.Background(), "nope", rec.envelope("1"))
	require.ErrorIs(t, err, core.ErrUnknownChannel)
	assert.ErrorIs(t, rec.reason(0), core.ErrUnknownChannel)
}

func TestGraph_DispatchAfterClose(t *testing.T) {
	g, err := core.Assemble(incrementPipeline(&collector[int]{}))
	require.NoError(t, err)
	require.NoError(t, g.Close())

	rec := &acks{}
	err = g.Dispatch(context.Background(), "in", rec.envelope("1"))
	require.ErrorIs(t, err, core.ErrGraphClosed)
	_, nacked := rec.counts()
	assert.Equal(t, 1, nacked)
	assert.ErrorIs(t, g.Start(context.Background()), core.ErrGraphClosed)
}

func TestGraph_BufferedKeepsFIFOPerLink(t *testing.T) {
	results := &collector[int]{}
	r := core.NewRegistry()
	r.RegisterProducer("n", core.Produce[int]("src"))
	r.RegisterConsumer("n", results.unit("sink"))
	g, err := core.Assemble(r, core.WithBuffer(4))
	require.NoError(t, err)
	require.NoError(t, g.Start(context.Background()))

	rec := &acks{}
	for i := range 20 {
		require.NoError(t, g.Dispatch(context.Background(), "n", rec.envelope(i)))
	}
	require.NoError(t, g.Close())

	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, results.all())
	acked, _ := rec.counts()
	assert.Equal(t, 20, acked)
}

func TestGraph_BufferedBroadcastDrainsThroughTransforms(t *testing.T) {
	a, b := &collector[int]{}, &collector[int]{}
	r := core.NewRegistry()
	r.RegisterProducer("in", core.Produce[string]("feed"))
	r.Bind("in", "data", core.Transform("process", increment))
	r.RegisterConsumer("data", a.unit("a"))
	r.RegisterConsumer("data", b.unit("b"))
	g, err := core.Assemble(r, core.WithBuffer(2))
	require.NoError(t, err)
	require.NoError(t, g.Start(context.Background()))

	rec := &acks{}
	for _, s := range []string{"1", "2", "3"} {
		require.NoError(t, g.Dispatch(context.Background(), "in", rec.envelope(s)))
	}
	require.NoError(t, g.Close())

	assert.Equal(t, []int{2, 3, 4}, a.all())
	assert.Equal(t, []int{2, 3, 4}, b.all())
	acked, _ := rec.counts()
	assert.Equal(t, 3, acked)
}

func TestGraph_DropNewest(t *testing.T) {
	results := &collector[int]{}
	r := core.NewRegistry()
	r.RegisterProducer("n", core.Produce[int]("src"))
	r.RegisterConsumer("n", results.unit("sink"))
	g, err := core.Assemble(r, core.WithBuffer(1), core.WithOverflow(core.DropNewest))
	require.NoError(t, err)

	first, dropped := &acks{}, &acks{}
	ctx := context.Background()
	require.NoError(t, g.Dispatch(ctx, "n", first.envelope(1)))
	require.NoError(t, g.Dispatch(ctx, "n", dropped.envelope(2)))
	require.NoError(t, g.Dispatch(ctx, "n", dropped.envelope(3)))

	_, nacked := dropped.counts()
	assert.Equal(t, 2, nacked)
	assert.ErrorIs(t, dropped.reason(0), core.ErrOverflow)

	require.NoError(t, g.Start(ctx))
	require.NoError(t, g.Close())
	assert.Equal(t, []int{1}, results.all())
}

func TestGraph_DropOldest(t *testing.T) {
	results := &collector[int]{}
	r := core.NewRegistry()
	r.RegisterProducer("n", core.Produce[int]("src"))
	r.RegisterConsumer("n", results.unit("sink"))
	g, err := core.Assemble(r, core.WithBuffer(1), core.WithOverflow(core.DropOldest))
	require.NoError(t, err)

	old, newest := &acks{}, &acks{}
	ctx := context.Background()
	require.NoError(t, g.Dispatch(ctx, "n", old.envelope(1)))
	require.NoError(t, g.Dispatch(ctx, "n", newest.envelope(2)))

	_, nacked := old.counts()
	assert.Equal(t, 1, nacked)
	assert.ErrorIs(t, old.reason(0), core.ErrOverflow)

	require.NoError(t, g.Start(ctx))
	require.NoError(t, g.Close())
	assert.Equal(t, []int{2}, results.all())
	acked, _ := newest.counts()
	assert.Equal(t, 1, acked)
}

func TestGraph_BlockHonoursContext(t *testing.T) {
	r := core.NewRegistry()
	r.RegisterProducer("n", core.Produce[int]("src"))
	r.RegisterConsumer("n", (&collector[int]{}).unit("sink"))
	g, err := core.Assemble(r, core.WithBuffer(1))
	require.NoError(t, err)

	queued, blocked := &acks{}, &acks{}
	require.NoError(t, g.Dispatch(context.Background(), "n", queued.envelope(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = g.Dispatch(ctx, "n", blocked.envelope(2))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	_, nacked := blocked.counts()
	assert.Equal(t, 1, nacked)

	// Never started: Close nacks what is still queued.
	require.NoError(t, g.Close())
	_, nacked = queued.counts()
	assert.Equal(t, 1, nacked)
	assert.ErrorIs(t, queued.reason(0), core.ErrGraphClosed)
}

func TestGraph_Run(t *testing.T) {
	results := &collector[int]{}
	g, err := core.Assemble(incrementPipeline(results), core.WithBuffer(8))
	require.NoError(t, err)

	require.NoError(t, g.Dispatch(context.Background(), "in", core.Of("9")))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- g.Run(ctx) }()
	cancel()

	require.NoError(t, <-errCh)
	assert.Equal(t, []int{10}, results.all(), "queued envelopes drain on shutdown")
	assert.ErrorIs(t, g.Start(context.Background()), core.ErrGraphClosed)
}

func TestGraph_DoubleStart(t *testing.T) {
	g, err := core.Assemble(incrementPipeline(&collector[int]{}), core.WithBuffer(1))
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.Start(context.Background()))
	assert.ErrorIs(t, g.Start(context.Background()), core.ErrAlreadyStarted)
}

func TestGraph_MiddlewareAndDelivery(t *testing.T) {
	var order []string
	mw := func(name string) core.Middleware {
		return func(next core.HandlerFunc) core.HandlerFunc {
			return func(ctx context.Context, env core.Envelope, emit core.Emitter) error {
				d, _ := core.DeliveryFrom(ctx)
				order = append(order, name+":"+d.Channel+"/"+d.Unit)
				return next(ctx, env, emit)
			}
		}
	}

	results := &collector[int]{}
	g, err := core.Assemble(incrementPipeline(results), core.WithMiddleware(mw("A"), mw("B")))
	require.NoError(t, err)
	require.NoError(t, g.Dispatch(context.Background(), "in", core.Of("1")))

	assert.Equal(t, []string{
		"A:in/process", "B:in/process",
		"A:data/sink", "B:data/sink",
	}, order)
}

func TestGraph_LogsConsumerFailures(t *testing.T) {
	var buf bytes.Buffer
	r := core.NewRegistry()
	r.RegisterProducer("in", core.Produce[string]("feed"))
	r.RegisterConsumer("in", core.Consume("fails", func(context.Context, string) error {
		return errors.New("boom")
	}))
	g, err := core.Assemble(r, core.WithLogger(zerolog.New(&buf)))
	require.NoError(t, err)

	require.NoError(t, g.Dispatch(context.Background(), "in", core.Of("x")))
	assert.Contains(t, buf.String(), `"channel":"in"`)
	assert.Contains(t, buf.String(), `"unit":"fails"`)
	assert.Contains(t, buf.String(), "boom")
}
