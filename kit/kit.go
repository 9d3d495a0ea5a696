// Package kit holds the small transport-agnostic plumbing shared by the
// HTTP and MCP surfaces: the Endpoint shape and request-scoped context
// values.
package kit

import "context"

// Endpoint is one logical operation: typed request in, typed response out.
// Transports (HTTP handlers, MCP tools) adapt to this shape so the
// operation itself stays transport-free.
type Endpoint func(ctx context.Context, request any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares outermost-first: Chain(a, b)(e) runs a, then
// b, then e.
func Chain(mws ...Middleware) Middleware {
	return func(e Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			e = mws[i](e)
		}
		return e
	}
}
