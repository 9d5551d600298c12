package completion

import (
	"context"
	"time"
)

// TimeoutMiddleware wraps a Provider so every call gets its own per-request
// deadline, preventing a stalled completion call from hanging the caller
// indefinitely.
func TimeoutMiddleware(d time.Duration) Middleware {
	return func(next Provider) Provider {
		return WrapProvider(next.Name(), next,
			func(ctx context.Context, req Request) (Response, error) {
				ctx, cancel := context.WithTimeout(ctx, d)
				defer cancel()
				return next.Complete(ctx, req)
			},
			func(ctx context.Context, req Request, schema Schema) (string, error) {
				ctx, cancel := context.WithTimeout(ctx, d)
				defer cancel()
				return next.CompleteStructured(ctx, req, schema)
			},
			func(ctx context.Context, req Request, fns []FunctionDefinition) (FunctionCallResult, error) {
				ctx, cancel := context.WithTimeout(ctx, d)
				defer cancel()
				return next.CompleteWithFunctions(ctx, req, fns)
			},
		)
	}
}
