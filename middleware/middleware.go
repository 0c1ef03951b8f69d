// Package middleware wraps gateway calls in an onion of interceptors.
//
// The same HandlerFunc shape is used on both sides of the connection: the client
// wraps its Invoke with it, and the mock gateway wraps its method handlers with it, so
// logging and rate limiting are written once.
package middleware

import (
	"context"
	"encoding/json"
	"time"
)

// Request is one method call as seen by the middleware chain.
type Request struct {
	Method string
	Params map[string]any

	// Timeout is the overall budget of the call; zero means the client default.
	Timeout time.Duration
}

type HandlerFunc func(ctx context.Context, req *Request) (json.RawMessage, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one is the outermost:
// Chain(A, B)(h) runs A.before, B.before, h, B.after, A.after.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
