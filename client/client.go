// Package client exposes the top-level tile-reading API: one TileClient per
// application, one handle pool per image, tile reads flowing through the
// configured middleware chain.
//
//	ReadTile ──► logging ─► rate limit ─► retry ─► timeout ─► read:
//	    pool.WithHandle ─► clamp ─► ReadPlanes (locked on the handle)
//	    └─► pixel.DecodePlanes ─► *tile.Tile
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tilebridge/affinity"
	"tilebridge/directory"
	"tilebridge/gateway"
	"tilebridge/middleware"
	"tilebridge/pixel"
	"tilebridge/pool"
	"tilebridge/tile"
)

// Config tunes one TileClient. DefaultConfig gives workable defaults; zero
// values for the optional features (rate limit, retries, read timeout) switch
// the corresponding middleware off.
type Config struct {
	// Capacity and AcquireTimeout are handed to every per-image pool.
	Capacity       int
	Parallelism    int
	AcquireTimeout time.Duration

	// PreferredServer is probed first when creating handles; empty lets
	// the Picker decide. Picker defaults to image-hash affinity.
	PreferredServer string
	Picker          affinity.Picker

	// RateLimit throttles reads to this many tiles/second (burst Burst)
	// when > 0.
	RateLimit float64
	Burst     int

	// MaxRetries > 0 enables retry of transient read failures.
	MaxRetries uint64
	RetryDelay time.Duration

	// ReadTimeout > 0 bounds each read attempt.
	ReadTimeout time.Duration

	Logger  *zap.Logger
	Metrics *pool.Metrics
}

// DefaultConfig returns the settings used by the desktop host: small pools,
// a couple of retries, and a per-read timeout well under the acquire timeout.
func DefaultConfig() Config {
	return Config{
		Capacity:       4,
		AcquireTimeout: pool.DefaultAcquireTimeout,
		MaxRetries:     2,
		RetryDelay:     100 * time.Millisecond,
		ReadTimeout:    30 * time.Second,
	}
}

// TileClient reads decoded tiles from whichever server in the fleet hosts the
// requested image. Safe for concurrent use by multiple rendering goroutines.
type TileClient struct {
	cfg      Config
	provider *pool.Provider
	logger   *zap.Logger
	handler  middleware.Handler

	mu    sync.Mutex
	pools map[string]*pool.Pool // imageID → its handle pool
}

// New builds a TileClient over a dialer and a directory.
func New(dialer gateway.Dialer, dir directory.Directory, cfg Config) *TileClient {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c := &TileClient{
		cfg:      cfg,
		provider: pool.NewProvider(dialer, dir, cfg.Logger),
		logger:   cfg.Logger,
		pools:    make(map[string]*pool.Pool),
	}

	// Logging outermost so it reports the request's total fate; the
	// timeout innermost so each retry attempt gets its own deadline.
	mws := []middleware.Middleware{middleware.Logging(cfg.Logger)}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		mws = append(mws, middleware.RateLimit(cfg.RateLimit, burst))
	}
	if cfg.MaxRetries > 0 {
		delay := cfg.RetryDelay
		if delay <= 0 {
			delay = 100 * time.Millisecond
		}
		mws = append(mws, middleware.Retry(cfg.MaxRetries, delay))
	}
	if cfg.ReadTimeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.ReadTimeout))
	}
	c.handler = middleware.Chain(mws...)(c.readTile)
	return c
}

// ReadTile reads and decodes one tile through the middleware chain. The
// returned tile carries the clamped request, so callers see the effective
// geometry.
func (c *TileClient) ReadTile(ctx context.Context, req tile.Request) (*tile.Tile, error) {
	return c.handler(ctx, req)
}

// ReadTiles reads several tiles concurrently, at most one in-flight read per
// pool slot. The first failure cancels the remaining reads.
func (c *TileClient) ReadTiles(ctx context.Context, reqs []tile.Request) ([]*tile.Tile, error) {
	tiles := make([]*tile.Tile, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	limit := c.cfg.Capacity
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			result, err := c.ReadTile(ctx, req)
			if err != nil {
				return err
			}
			tiles[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tiles, nil
}

// Describe returns the cached image metadata (pyramid geometry, channel
// count, pixel format) without reading pixels.
func (c *TileClient) Describe(ctx context.Context, imageID string) (gateway.ImageDescription, error) {
	p, err := c.poolFor(ctx, imageID)
	if err != nil {
		return gateway.ImageDescription{}, err
	}
	var desc gateway.ImageDescription
	err = p.WithHandle(ctx, func(h *pool.Handle) error {
		desc = h.Description()
		return nil
	})
	return desc, err
}

// readTile is the innermost handler: scoped handle use for the remote reads,
// decode after the handle is back in the pool.
func (c *TileClient) readTile(ctx context.Context, req tile.Request) (*tile.Tile, error) {
	p, err := c.poolFor(ctx, req.ImageID)
	if err != nil {
		return nil, err
	}

	var (
		clamped tile.Request
		desc    gateway.ImageDescription
		bufs    [][]byte
	)
	err = p.WithHandle(ctx, func(h *pool.Handle) error {
		levelW, levelH, err := h.LevelSize(req.Level)
		if err != nil {
			return err
		}
		clamped, err = req.ClampTo(levelW, levelH)
		if err != nil {
			return err
		}
		desc = h.Description()
		bufs, err = h.ReadPlanes(ctx, clamped)
		return err
	})
	if err != nil {
		return nil, err
	}

	// The store hands back one plane per channel, whatever layout the
	// image was acquired with; decode accordingly.
	format := desc.Format
	format.Layout = pixel.Separated
	channels := len(clamped.Channels)
	if channels == 0 {
		channels = desc.Channels
	}
	planes, err := pixel.DecodePlanes(bufs, format, clamped.Width, clamped.Height, channels)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", clamped, err)
	}

	return &tile.Tile{Request: clamped, Format: format, Planes: planes}, nil
}

// poolFor returns the image's handle pool, creating it (and its eagerly
// created main handle) on first use.
func (c *TileClient) poolFor(ctx context.Context, imageID string) (*pool.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pools[imageID]; ok {
		return p, nil
	}

	factory := pool.NewFactory(c.provider, imageID, c.cfg.PreferredServer, c.cfg.Picker, c.logger)
	p, err := pool.New(ctx, factory, pool.Config{
		Capacity:       c.cfg.Capacity,
		Parallelism:    c.cfg.Parallelism,
		AcquireTimeout: c.cfg.AcquireTimeout,
		Logger:         c.logger,
		Metrics:        c.cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("open image %q: %w", imageID, err)
	}
	c.pools[imageID] = p
	return p, nil
}

// Close shuts down every pool, then every fleet session.
func (c *TileClient) Close() error {
	c.mu.Lock()
	pools := c.pools
	c.pools = make(map[string]*pool.Pool)
	c.mu.Unlock()

	for _, p := range pools {
		p.Close()
	}
	return c.provider.Close()
}
