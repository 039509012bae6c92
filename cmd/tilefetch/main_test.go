package main

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// End-to-end: the command fetches a tile from the simulated fleet and dumps
// one channel as a PNG with the requested geometry.
func TestFetchWritesPNG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tile.png")

	cmd := newRootCommand()
	cmd.SetArgs([]string{
		"--level", "2",
		"--width", "32", "--height", "16",
		"--out", out,
	})
	require.NoError(t, cmd.Execute())

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
}

func TestStats(t *testing.T) {
	lo, hi, mean := stats([]float64{2, 4, 6})
	assert.Equal(t, 2.0, lo)
	assert.Equal(t, 6.0, hi)
	assert.Equal(t, 4.0, mean)
}
