// Command chanflow runs the data -> process -> sink pipeline: integers read
// from the "data" topic are incremented and written to the "sink" topic.
//
// Connector settings are read from a properties file, for example:
//
//	chanflow.messaging.source.data.type=mqtt
//	chanflow.messaging.source.data.topic=data
//	chanflow.messaging.source.data.host=localhost
//	chanflow.messaging.source.data.port=1883
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"

	"github.com/miladsoleymani/chanflow"
	"github.com/miladsoleymani/chanflow/config"
	"github.com/miladsoleymani/chanflow/core"
	"github.com/miladsoleymani/chanflow/core/middleware"

	// Import plugins to trigger self-registration via init()
	_ "github.com/miladsoleymani/chanflow/plugins/kafka"
	_ "github.com/miladsoleymani/chanflow/plugins/mqtt"
	_ "github.com/miladsoleymani/chanflow/plugins/nats"
	_ "github.com/miladsoleymani/chanflow/plugins/rabbitmq"
)

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelDebug}),
	))
}

// counter tallies handled envelopes per outcome.
type counter struct {
	ok, failed atomic.Int64
}

func (c *counter) EnvelopeHandled(_, _ string, _ time.Duration, err error) {
	if err != nil {
		c.failed.Add(1)
		return
	}
	c.ok.Add(1)
}

func main() {
	path := flag.String("config", "chanflow.properties", "properties file with the connector settings")
	root := flag.String("root", config.DefaultRoot, "configuration namespace root")
	buffer := flag.Int("buffer", 16, "queue size of every link, 0 delivers inline")
	flag.Parse()

	store, err := config.LoadFile(*path)
	if err != nil {
		slog.Error("failed to load configuration", "path", *path, "error", err)
		os.Exit(1)
	}

	stats := &counter{}
	p, err := chanflow.New(store,
		chanflow.WithRoot(*root),
		chanflow.WithLogger(log),
		chanflow.WithGraph(
			core.WithBuffer(*buffer),
			core.WithMiddleware(
				middleware.Recovery(log),
				middleware.Logging(log),
				middleware.Metrics(stats),
			),
		),
	)
	if err != nil {
		slog.Error("failed to create pipeline", "error", err)
		os.Exit(1)
	}

	r := p.Registry()
	r.Bind("data", "numbers", core.Decode[int]("decode", nil))
	r.Bind("numbers", "sink", core.Transform("process", func(_ context.Context, n int) (int, error) {
		return n + 1, nil
	}))
	r.RegisterConsumer("sink", core.Consume("list", func(_ context.Context, n int) error {
		slog.Info("processed", "value", n)
		return nil
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting chanflow", "config", *path)
	if err := p.Run(ctx); err != nil {
		slog.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
	slog.Info("done", "handled", stats.ok.Load(), "failed", stats.failed.Load())
}
