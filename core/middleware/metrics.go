package middleware

import (
	"context"
	"time"

	"github.com/miladsoleymani/chanflow/core"
)

// MetricsCollector is the interface that metrics backends must implement.
// This keeps the middleware decoupled from any specific metrics library.
type MetricsCollector interface {
	// EnvelopeHandled records one handler invocation. err is nil on success.
	EnvelopeHandled(channel, unit string, duration time.Duration, err error)
}

// Metrics returns middleware that reports handling metrics to the given collector.
func Metrics(collector MetricsCollector) core.Middleware {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(ctx context.Context, env core.Envelope, emit core.Emitter) error {
			start := time.Now()
			err := next(ctx, env, emit)
			d, _ := core.DeliveryFrom(ctx)
			collector.EnvelopeHandled(d.Channel, d.Unit, time.Since(start), err)
			return err
		}
	}
}
