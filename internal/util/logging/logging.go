package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// New creates a JSON zerolog.Logger tagged with the service name.
func New(w io.Writer, service string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	ctx := zerolog.New(w).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	return ctx.Logger()
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from context.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// For returns logger annotated with the request ID carried by ctx, if any.
func For(logger zerolog.Logger, ctx context.Context) *zerolog.Logger {
	if id := RequestID(ctx); id != "" {
		l := logger.With().Str("request_id", id).Logger()
		return &l
	}
	return &logger
}

// LogRequest logs a finished HTTP request. Server errors log at error level.
func LogRequest(logger zerolog.Logger, ctx context.Context, method, path string, status int, size int64, latency time.Duration) {
	ev := logger.Info()
	if status >= 500 {
		ev = logger.Error()
	}
	ev.Str("request_id", RequestID(ctx)).
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Int64("size", size).
		Dur("latency", latency).
		Msg("request")
}
