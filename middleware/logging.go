package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tilebridge/tile"
)

// Logging logs every tile read with its duration, and failures with their
// error. Debug on success keeps render-loop traffic out of production logs.
func Logging(logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req tile.Request) (*tile.Tile, error) {
			start := time.Now()
			result, err := next(ctx, req)
			fields := []zap.Field{
				zap.Stringer("request", req),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("tile read failed", append(fields, zap.Error(err))...)
				return nil, err
			}
			logger.Debug("tile read", fields...)
			return result, nil
		}
	}
}
