package session

import (
	"context"
	"fmt"
	"math/rand"
)

// Unexported key types prevent collisions with other packages.
type (
	traceIDCtxKey    struct{}
	remoteInfoCtxKey struct{}
)

// WithNewTraceID ensures a trace ID is present in the context.
// If one already exists, it returns the original context unmodified.
func WithNewTraceID(ctx context.Context) context.Context {
	if _, ok := TraceIDFrom(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, traceIDCtxKey{}, generateTraceID())
}

// TraceIDFrom extracts a trace ID string from the context, if one exists.
func TraceIDFrom(ctx context.Context) (string, bool) {
	traceID, ok := ctx.Value(traceIDCtxKey{}).(string)
	return traceID, ok
}

// WithRemoteInfo returns a new context carrying the target domain of the
// in-flight exchange so log lines can be correlated per host.
func WithRemoteInfo(ctx context.Context, domain string) context.Context {
	return context.WithValue(ctx, remoteInfoCtxKey{}, domain)
}

// RemoteInfoFrom extracts the target domain from the context, if one exists.
func RemoteInfoFrom(ctx context.Context) (string, bool) {
	domain, ok := ctx.Value(remoteInfoCtxKey{}).(string)
	return domain, ok
}

func generateTraceID() string {
	return fmt.Sprintf("%016x", rand.Uint64())
}
