package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tilebridge/pixel"
	"tilebridge/pool"
	"tilebridge/tile"
)

// Retry re-runs failed tile reads with exponential backoff, transient
// failures only. The fatal taxonomy is never retried: an unresolvable image,
// an empty clamped region, and an unsupported pixel encoding stay fatal no
// matter how often they are attempted, and a canceled context means the
// caller is gone.
func Retry(maxRetries uint64, initialDelay time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req tile.Request) (*tile.Tile, error) {
			var result *tile.Tile

			expo := backoff.NewExponentialBackOff()
			expo.InitialInterval = initialDelay
			policy := backoff.WithContext(backoff.WithMaxRetries(expo, maxRetries), ctx)

			err := backoff.Retry(func() error {
				var readErr error
				result, readErr = next(ctx, req)
				if readErr != nil && !retryable(readErr) {
					return backoff.Permanent(readErr)
				}
				return readErr
			}, policy)
			if err != nil {
				return nil, err
			}
			return result, nil
		}
	}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, pool.ErrImageUnresolvable),
		errors.Is(err, pool.ErrPoolClosed),
		errors.Is(err, tile.ErrEmptyRegion),
		errors.Is(err, pixel.ErrUnsupportedType),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
