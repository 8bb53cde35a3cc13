package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

func WithRequestID(ctx context.Context, reqID string) context.Context {
	l := FromContext(ctx)
	return WithContext(ctx, l.With("req_id", reqID))
}

// WithConnection tags the context logger with the identity of a live
// gateway connection.
func WithConnection(ctx context.Context, connID, subject, role string) context.Context {
	l := FromContext(ctx)
	return WithContext(ctx, l.With("conn_id", connID, "sub", subject, "role", role))
}
