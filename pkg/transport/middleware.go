package transport

import (
	"context"
	"slices"
)

// Middleware decorates a CompletionCreator.
type Middleware func(CompletionCreator) CompletionCreator

// Chain folds middlewares into one. The first argument ends up outermost,
// so Chain(a, b)(h) runs a, then b, then h.
func Chain(middlewares ...Middleware) Middleware {
	return func(inner CompletionCreator) CompletionCreator {
		for _, mw := range slices.Backward(middlewares) {
			inner = mw(inner)
		}
		return inner
	}
}

type ctxKey int

const requestIDKey ctxKey = iota

// RequestIDFromContext returns the request id assigned to ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithRequestID tags ctx with a request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
