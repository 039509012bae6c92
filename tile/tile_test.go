package tile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampToInsideBounds(t *testing.T) {
	r := Request{ImageID: "img-1", Level: 0, X: 10, Y: 20, Width: 64, Height: 64}
	clamped, err := r.ClampTo(512, 512)
	require.NoError(t, err)
	assert.Equal(t, r, clamped)
}

func TestClampToPartialOverlap(t *testing.T) {
	// A 64x64 request at (480, 500) against a 512x512 level leaves 32x12.
	r := Request{ImageID: "img-1", Level: 1, X: 480, Y: 500, Width: 64, Height: 64}
	clamped, err := r.ClampTo(512, 512)
	require.NoError(t, err)
	assert.Equal(t, 32, clamped.Width)
	assert.Equal(t, 12, clamped.Height)
	// The original is untouched.
	assert.Equal(t, 64, r.Width)
}

func TestClampToNoOverlap(t *testing.T) {
	r := Request{ImageID: "img-1", X: 600, Y: 0, Width: 64, Height: 64}
	_, err := r.ClampTo(512, 512)
	assert.ErrorIs(t, err, ErrEmptyRegion)
}

func TestClampToNegativeOrigin(t *testing.T) {
	r := Request{ImageID: "img-1", X: -1, Y: 0, Width: 64, Height: 64}
	_, err := r.ClampTo(512, 512)
	assert.ErrorIs(t, err, ErrEmptyRegion)
}
