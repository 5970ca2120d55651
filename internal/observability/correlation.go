package observability

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type correlationKey struct{}

// WithCorrelation returns a context carrying id and a logger that stamps
// every event with correlation_id. An existing context logger is extended
// rather than replaced, so request-level fields survive.
func WithCorrelation(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	base := zerolog.Ctx(ctx)
	if base.GetLevel() == zerolog.Disabled {
		base = &log.Logger
	}
	l := base.With().Str("correlation_id", id).Logger()
	ctx = context.WithValue(ctx, correlationKey{}, id)
	return l.WithContext(ctx)
}

// CorrelationID returns the id stored by WithCorrelation, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// Logger returns the context logger, falling back to the global logger when
// the context has none.
func Logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return &log.Logger
	}
	return l
}
