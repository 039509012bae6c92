package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"tilebridge/tile"
)

// RateLimit throttles tile reads with a token bucket: r tiles per second
// sustained, bursts of up to burst tiles. Waiting respects the caller's
// context, so a rate-starved read fails with the context's error instead of
// queueing forever.
//
// Useful when one plugin instance shares a server with interactive users and
// must not saturate the remote store with render-ahead traffic.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next Handler) Handler {
		return func(ctx context.Context, req tile.Request) (*tile.Tile, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return next(ctx, req)
		}
	}
}
