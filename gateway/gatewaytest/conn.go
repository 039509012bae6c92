package gatewaytest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tilebridge/gateway"
	"tilebridge/pixel"
)

// conn is one session to a simulated server.
type conn struct {
	server *Server

	mu    sync.Mutex
	group string
	alive bool
}

func (c *conn) Addr() string { return c.server.addr }

func (c *conn) ActiveGroup() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.group
}

func (c *conn) SetActiveGroup(_ context.Context, group string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.group = group
	return nil
}

func (c *conn) ResolveGroup(_ context.Context, imageID string) (string, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	img, ok := c.server.images[imageID]
	if !ok {
		return "", fmt.Errorf("gatewaytest: image %q not hosted on %s", imageID, c.server.addr)
	}
	return img.Group, nil
}

func (c *conn) OpenPixelStore(_ context.Context, imageID string) (gateway.PixelStore, error) {
	c.server.mu.Lock()
	img, ok := c.server.images[imageID]
	c.server.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("gatewaytest: image %q not hosted on %s", imageID, c.server.addr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.group != img.Group {
		return nil, fmt.Errorf("gatewaytest: image %q is in group %q, session is in %q",
			imageID, img.Group, c.group)
	}
	return &store{img: img, latency: c.server.latency}, nil
}

func (c *conn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = false
	return nil
}

// store simulates one session-bound pixel store. It carries mutable level
// state like the vendor proxy does, and rejects overlapping calls.
type store struct {
	img     Image
	latency time.Duration

	busy   atomic.Bool
	level  int
	closed atomic.Bool
}

// enter marks the store busy for the duration of one call.
func (s *store) enter() (func(), error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("gatewaytest: pixel store for %q is closed", s.img.ID)
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrConcurrentUse
	}
	return func() { s.busy.Store(false) }, nil
}

func (s *store) Describe(context.Context) (gateway.ImageDescription, error) {
	leave, err := s.enter()
	if err != nil {
		return gateway.ImageDescription{}, err
	}
	defer leave()
	return s.img.description(), nil
}

func (s *store) SetResolutionLevel(_ context.Context, level int) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()
	if level < 0 || level >= len(s.img.Levels) {
		return fmt.Errorf("gatewaytest: level %d out of range for %q", level, s.img.ID)
	}
	s.level = level
	return nil
}

func (s *store) GetTileBytes(ctx context.Context, z, channel, t, x, y, w, h int) ([]byte, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	level := s.img.Levels[s.level]
	if x < 0 || y < 0 || x+w > level.Width || y+h > level.Height || w <= 0 || h <= 0 {
		return nil, fmt.Errorf("gatewaytest: region (%d,%d %dx%d) outside level %d (%dx%d) of %q",
			x, y, w, h, s.level, level.Width, level.Height, s.img.ID)
	}
	if channel < 0 || channel >= s.img.Channels {
		return nil, fmt.Errorf("gatewaytest: channel %d out of range for %q", channel, s.img.ID)
	}

	samples := make([]float64, w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			samples[j*w+i] = SampleValue(s.level, channel, z, t, x+i, y+j)
		}
	}
	return pixel.EncodePlane(samples, s.img.Format.Type, s.img.Format.Order)
}

func (s *store) Close() error {
	s.closed.Store(true)
	return nil
}
