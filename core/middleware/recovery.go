package middleware

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/miladsoleymani/chanflow/core"
)

// Recovery returns middleware that recovers from panics in handlers,
// logs the stack trace, and returns the panic as an error so the envelope
// is nacked.
func Recovery(log zerolog.Logger) core.Middleware {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(ctx context.Context, env core.Envelope, emit core.Emitter) (err error) {
			defer func() {
				if r := recover(); r != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					d, _ := core.DeliveryFrom(ctx)
					log.Error().
						Str("channel", d.Channel).
						Str("unit", d.Unit).
						Interface("panic", r).
						Bytes("stack", buf[:n]).
						Msg("panic recovered")
					err = fmt.Errorf("chanflow: panic recovered: %v", r)
				}
			}()
			return next(ctx, env, emit)
		}
	}
}
