package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/miladsoleymani/chanflow/core"
)

// Logging returns middleware that logs handler duration and errors.
func Logging(log zerolog.Logger) core.Middleware {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(ctx context.Context, env core.Envelope, emit core.Emitter) error {
			start := time.Now()
			err := next(ctx, env, emit)
			d, _ := core.DeliveryFrom(ctx)

			ev := log.Debug()
			if err != nil {
				ev = log.Error().Err(err)
			}
			ev.Str("channel", d.Channel).
				Str("unit", d.Unit).
				Dur("elapsed", time.Since(start)).
				Msg("handled")
			return err
		}
	}
}
