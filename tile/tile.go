// Package tile defines the request and result types exchanged between the
// tile client and the handle pool.
//
// A Request pins down one rectangular region of one resolution level of one
// image, at a given depth (z) and time (t) index. Requests are immutable value
// types — clamping produces a copy, never mutates the original.
package tile

import (
	"errors"
	"fmt"

	"tilebridge/pixel"
)

// ErrEmptyRegion is returned when a request's rectangle, after clamping to the
// image bounds, has no area left. This is a fatal, IO-style failure for that
// request and is never retried.
var ErrEmptyRegion = errors.New("tile: requested region is outside the image bounds")

// Request identifies a rectangular region of a specific resolution level.
//
// Level 0 is the full-resolution entry of the pyramid; higher levels are
// progressively downsampled. Channels lists the channel indices to read; an
// empty slice means all channels.
type Request struct {
	ImageID  string
	Level    int
	X, Y     int
	Width    int
	Height   int
	Z, T     int
	Channels []int
}

func (r Request) String() string {
	return fmt.Sprintf("%s L%d (%d,%d %dx%d) z=%d t=%d", r.ImageID, r.Level, r.X, r.Y, r.Width, r.Height, r.Z, r.T)
}

// ClampTo returns a copy of the request with Width and Height reduced to fit
// inside a level of the given size: the effective extent in each axis is
// min(requested, levelSize-offset). A region with no remaining area yields
// ErrEmptyRegion.
func (r Request) ClampTo(levelWidth, levelHeight int) (Request, error) {
	clamped := r
	if r.X+r.Width > levelWidth {
		clamped.Width = levelWidth - r.X
	}
	if r.Y+r.Height > levelHeight {
		clamped.Height = levelHeight - r.Y
	}
	if clamped.Width <= 0 || clamped.Height <= 0 || r.X < 0 || r.Y < 0 {
		return Request{}, fmt.Errorf("%w: %s against %dx%d", ErrEmptyRegion, r, levelWidth, levelHeight)
	}
	return clamped, nil
}

// Tile is a decoded region ready for compositing: one row-major float64 plane
// per requested channel, in the order the channels were requested.
type Tile struct {
	Request Request
	Format  pixel.Format
	Planes  [][]float64
}

// Plane returns the decoded samples of the i-th requested channel.
func (t *Tile) Plane(i int) []float64 {
	return t.Planes[i]
}
