package middleware

import (
	"context"
	"time"

	"tilebridge/tile"
)

// Timeout bounds one tile read with a context deadline. The handle pool and
// the gateway both take the context through, so the deadline reaches the
// remote call rather than abandoning a goroutine mid-read.
func Timeout(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req tile.Request) (*tile.Tile, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}
