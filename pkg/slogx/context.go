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

// WithPeer tags the context logger with the remote address of the
// connection a request arrived on.
func WithPeer(ctx context.Context, addr string) context.Context {
	return WithContext(ctx, FromContext(ctx).With("peer", addr))
}
