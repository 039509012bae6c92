// Package middleware wraps tile reads in an onion-model chain.
//
// Chain(A, B, C)(handler) → A(B(C(handler))): A sees the request first and
// the response last. The same chain shape serves logging, retry, timeout and
// rate limiting, so the tile client composes exactly the cross-cutting
// behavior a deployment needs.
package middleware

import (
	"context"

	"tilebridge/tile"
)

// Handler performs one tile read.
type Handler func(ctx context.Context, req tile.Request) (*tile.Tile, error)

// Middleware wraps a Handler with extra behavior.
type Middleware func(next Handler) Handler

// Chain composes middlewares into one, outermost first.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
