// Package groutine starts named goroutines. The name is attached as a pprof
// label so long-lived workers (signal routers, subscription drains) are
// identifiable in goroutine profiles, and it travels in the context for log
// fields.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey struct{}

// Go runs fn on a new goroutine labelled with name. A nil parent context is
// treated as context.Background().
func Go(parent context.Context, name string, fn func(ctx context.Context)) {
	if parent == nil {
		parent = context.Background()
	}

	go pprof.Do(parent, pprof.Labels("goroutine_name", name), func(ctx context.Context) {
		fn(context.WithValue(ctx, ctxKey{}, name))
	})
}

// Name returns the label Go attached to ctx, or "" when ctx did not come
// from Go.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(ctxKey{}).(string); ok {
		return s
	}
	return ""
}
