package completion

import "context"

// Middleware wraps a Provider with additional behavior (retry, rate-limit
// queueing, metrics). Middlewares are composed with Chain.
type Middleware func(next Provider) Provider

// providerFunc adapts plain functions to the Provider interface, letting
// middleware construct wrapped providers without a named struct per layer.
type providerFunc struct {
	name                  string
	complete              func(context.Context, Request) (Response, error)
	completeStructured    func(context.Context, Request, Schema) (string, error)
	completeWithFunctions func(context.Context, Request, []FunctionDefinition) (FunctionCallResult, error)
}

func (f providerFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f.complete(ctx, req)
}

func (f providerFunc) CompleteStructured(ctx context.Context, req Request, schema Schema) (string, error) {
	return f.completeStructured(ctx, req, schema)
}

func (f providerFunc) CompleteWithFunctions(ctx context.Context, req Request, fns []FunctionDefinition) (FunctionCallResult, error) {
	return f.completeWithFunctions(ctx, req, fns)
}

func (f providerFunc) Name() string { return f.name }

// WrapProvider builds a Provider from three plain functions, sharing the
// wrapped provider's name. Middleware implementations use this to return a
// new layer around next.
func WrapProvider(name string, next Provider,
	complete func(context.Context, Request) (Response, error),
	completeStructured func(context.Context, Request, Schema) (string, error),
	completeWithFunctions func(context.Context, Request, []FunctionDefinition) (FunctionCallResult, error),
) Provider {
	if complete == nil {
		complete = next.Complete
	}
	if completeStructured == nil {
		completeStructured = next.CompleteStructured
	}
	if completeWithFunctions == nil {
		completeWithFunctions = next.CompleteWithFunctions
	}
	return providerFunc{
		name:                  name,
		complete:              complete,
		completeStructured:    completeStructured,
		completeWithFunctions: completeWithFunctions,
	}
}

// Chain composes middlewares around a base provider. Earlier middlewares in
// the list are outermost: Chain(base, mw1, mw2) calls mw1, then mw2, then base.
func Chain(base Provider, middlewares ...Middleware) Provider {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}
