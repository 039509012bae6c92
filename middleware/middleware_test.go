package middleware

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tilebridge/pool"
	"tilebridge/tile"
)

var testReq = tile.Request{ImageID: "img-1", Level: 0, Width: 64, Height: 64}

func okHandler(calls *atomic.Int32) Handler {
	return func(ctx context.Context, req tile.Request) (*tile.Tile, error) {
		calls.Add(1)
		return &tile.Tile{Request: req}, nil
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, req tile.Request) (*tile.Tile, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	var calls atomic.Int32
	h := Chain(tag("outer"), tag("inner"))(okHandler(&calls))
	_, err := h(context.Background(), testReq)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryRecoversTransientFailure(t *testing.T) {
	var attempts atomic.Int32
	flaky := func(ctx context.Context, req tile.Request) (*tile.Tile, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("connection reset")
		}
		return &tile.Tile{Request: req}, nil
	}

	h := Retry(5, time.Millisecond)(flaky)
	result, err := h(context.Background(), testReq)
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryGivesUpEventually(t *testing.T) {
	var attempts atomic.Int32
	broken := func(context.Context, tile.Request) (*tile.Tile, error) {
		attempts.Add(1)
		return nil, errors.New("connection reset")
	}

	h := Retry(2, time.Millisecond)(broken)
	_, err := h(context.Background(), testReq)
	assert.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load()) // initial try + 2 retries
}

func TestRetryNeverRetriesFatalErrors(t *testing.T) {
	fatal := []error{
		pool.ErrImageUnresolvable,
		pool.ErrPoolClosed,
		tile.ErrEmptyRegion,
	}
	for _, fatalErr := range fatal {
		var attempts atomic.Int32
		h := Retry(5, time.Millisecond)(func(context.Context, tile.Request) (*tile.Tile, error) {
			attempts.Add(1)
			return nil, fatalErr
		})
		_, err := h(context.Background(), testReq)
		assert.ErrorIs(t, err, fatalErr)
		assert.Equal(t, int32(1), attempts.Load(), "%v must not be retried", fatalErr)
	}
}

func TestTimeoutCutsOffSlowReads(t *testing.T) {
	slow := func(ctx context.Context, req tile.Request) (*tile.Tile, error) {
		select {
		case <-time.After(5 * time.Second):
			return &tile.Tile{Request: req}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	h := Timeout(50 * time.Millisecond)(slow)
	start := time.Now()
	_, err := h(context.Background(), testReq)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRateLimitThrottles(t *testing.T) {
	var calls atomic.Int32
	// 20/s with burst 1: the second call has to wait ~50ms for a token.
	h := RateLimit(20, 1)(okHandler(&calls))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := h(context.Background(), testReq)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLoggingPassesThrough(t *testing.T) {
	var calls atomic.Int32
	h := Logging(zap.NewNop())(okHandler(&calls))
	result, err := h(context.Background(), testReq)
	require.NoError(t, err)
	assert.Equal(t, testReq, result.Request)

	h = Logging(zap.NewNop())(func(context.Context, tile.Request) (*tile.Tile, error) {
		return nil, errors.New("boom")
	})
	_, err = h(context.Background(), testReq)
	assert.Error(t, err)
}
