// Package pool implements the tile-reading handle pool: a bounded pool of
// session-bound pixel-store handles with per-handle mutual exclusion, lazy
// growth up to a process-derived ceiling, and a shared main-handle fallback
// when acquisition times out.
//
// A remote pixel store serves one request at a time, so a burst of tile reads
// against a single store serializes badly. The pool keeps up to
// min(capacity, max(1, GOMAXPROCS)) stores open for the same image and hands
// them out one requester at a time:
//
//	render goroutine ──Acquire──┐
//	render goroutine ──Acquire──┼──→ chan *Handle ──→ one store per requester
//	render goroutine ──Acquire──┘        │
//	                                     └─ empty → grow (one task) → wait → main
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"tilebridge/gateway"
	"tilebridge/tile"
)

// Handle wraps one remote pixel store together with the pyramid metadata read
// once at creation time, and the lock that makes the store's stateful call
// sequence safe.
//
// The store behind a handle is single-request: selecting a resolution level
// and then reading channel planes must not interleave with another request on
// the same store. ReadPlanes takes the handle's own lock around that whole
// sequence, so a handle shared by several requesters (the main-handle
// fallback) degrades to serialized access instead of corrupting level state.
type Handle struct {
	id   string
	main bool

	mu    sync.Mutex // guards the store's level-select + read sequence
	store gateway.PixelStore
	desc  gateway.ImageDescription

	closeOnce sync.Once
	closeErr  error
}

func newHandle(store gateway.PixelStore, desc gateway.ImageDescription) *Handle {
	return &Handle{
		id:    uuid.NewString()[:8],
		store: store,
		desc:  desc,
	}
}

// ID returns a short identifier for log correlation.
func (h *Handle) ID() string { return h.id }

// Main reports whether this is the pool's never-discarded fallback handle.
func (h *Handle) Main() bool { return h.main }

// Description returns the cached per-image metadata.
func (h *Handle) Description() gateway.ImageDescription { return h.desc }

// Levels returns the resolution-level count of the pyramid.
func (h *Handle) Levels() int { return len(h.desc.Levels) }

// LevelSize returns the width and height of one pyramid level.
func (h *Handle) LevelSize(level int) (int, int, error) {
	if level < 0 || level >= len(h.desc.Levels) {
		return 0, 0, fmt.Errorf("pool: level %d out of range [0,%d)", level, len(h.desc.Levels))
	}
	l := h.desc.Levels[level]
	return l.Width, l.Height, nil
}

// ReadPlanes selects the request's resolution level and fetches the raw bytes
// of every requested channel, all inside one critical section on the handle.
// An empty Channels slice reads every channel of the image.
//
// The request is assumed to be clamped already; geometry is passed through to
// the store untouched.
func (h *Handle) ReadPlanes(ctx context.Context, req tile.Request) ([][]byte, error) {
	channels := req.Channels
	if len(channels) == 0 {
		channels = make([]int, h.desc.Channels)
		for i := range channels {
			channels[i] = i
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.store.SetResolutionLevel(ctx, req.Level); err != nil {
		return nil, fmt.Errorf("select level %d: %w", req.Level, err)
	}

	bufs := make([][]byte, len(channels))
	for i, c := range channels {
		buf, err := h.store.GetTileBytes(ctx, req.Z, c, req.T, req.X, req.Y, req.Width, req.Height)
		if err != nil {
			return nil, fmt.Errorf("read channel %d of %s: %w", c, req, err)
		}
		bufs[i] = buf
	}
	return bufs, nil
}

// close releases the remote store. Safe to call more than once; only the
// first call reaches the store.
func (h *Handle) close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.store.Close()
	})
	return h.closeErr
}
