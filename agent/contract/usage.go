package contract

import (
	"context"
	"sync/atomic"
)

type tokenUsageKey struct{}

// WithTokenUsage returns a context carrying a fresh token counter. Model
// clients add to it; the handler wrapper reads the total into the response
// envelope when the task finishes.
func WithTokenUsage(ctx context.Context) context.Context {
	return context.WithValue(ctx, tokenUsageKey{}, new(atomic.Int64))
}

// AddTokenUsage records tokens against the context's counter. A context
// without a counter is a no-op, so model clients can call it unconditionally.
func AddTokenUsage(ctx context.Context, tokens int64) {
	if counter, ok := ctx.Value(tokenUsageKey{}).(*atomic.Int64); ok {
		counter.Add(tokens)
	}
}

// TokensUsed reports the total recorded against the context's counter.
func TokensUsed(ctx context.Context) int64 {
	if counter, ok := ctx.Value(tokenUsageKey{}).(*atomic.Int64); ok {
		return counter.Load()
	}
	return 0
}
