// Package middleware wraps command handlers with cross-cutting behaviour:
// logging, a per-command deadline and rate limiting.
//
// Middlewares compose like an onion. Chain(A, B)(h) runs A, then B, then h,
// and unwinds in reverse:
//
//	A → B → h → B → A
package middleware

import (
	"context"
	"editor-rpc/message"
)

// HandlerFunc answers one request. It never returns nil.
type HandlerFunc func(ctx context.Context, req *message.Request) *message.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one; the first argument is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
