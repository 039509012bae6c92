// tilefetch is a diagnostic CLI for the tilebridge reader pool. It spins up a
// simulated server fleet, reads one tile through the full client stack
// (directory → provider → handle pool → tile assembler → middleware), prints
// sample statistics, and optionally dumps one channel as a PNG.
//
// Real deployments embed the library and plug in the vendor dialer; the CLI
// exists to exercise and demonstrate the pipeline without a vendor server.
package main

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tilebridge/client"
	"tilebridge/gateway/gatewaytest"
	"tilebridge/pixel"
	"tilebridge/tile"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tilefetch",
		Short: "Fetch one tile through the tilebridge reader pool",
		RunE:  runFetch,
	}

	flags := cmd.Flags()
	flags.String("image", "demo", "image id to read")
	flags.Int("servers", 2, "number of simulated servers in the fleet")
	flags.Int("level", 0, "resolution level")
	flags.Int("x", 0, "tile origin x")
	flags.Int("y", 0, "tile origin y")
	flags.Int("width", 256, "tile width")
	flags.Int("height", 256, "tile height")
	flags.Int("z", 0, "depth index")
	flags.Int("t", 0, "time index")
	flags.Int("channel", 0, "channel to read and dump")
	flags.String("out", "", "write the channel as PNG to this path")
	flags.Float64("rate-limit", 0, "tiles per second (0 = unlimited)")
	flags.Bool("verbose", false, "log at debug level")

	// TILEBRIDGE_WIDTH=128 etc. override the flags, config-file style.
	viper.SetEnvPrefix("tilebridge")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(flags)

	return cmd
}

func runFetch(cmd *cobra.Command, _ []string) error {
	logger := zap.NewNop()
	if viper.GetBool("verbose") {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer logger.Sync()
	}

	imageID := viper.GetString("image")
	fleet := buildFleet(imageID, viper.GetInt("servers"))

	cfg := client.DefaultConfig()
	cfg.Logger = logger
	cfg.RateLimit = viper.GetFloat64("rate-limit")

	c := client.New(fleet, fleet.Directory(), cfg)
	defer c.Close()

	ctx := cmd.Context()
	desc, err := c.Describe(ctx, imageID)
	if err != nil {
		return err
	}
	fmt.Printf("image %s: %d levels, %d channels, %s\n",
		imageID, len(desc.Levels), desc.Channels, desc.Format)

	req := tile.Request{
		ImageID: imageID,
		Level:   viper.GetInt("level"),
		X:       viper.GetInt("x"),
		Y:       viper.GetInt("y"),
		Width:   viper.GetInt("width"),
		Height:  viper.GetInt("height"),
		Z:       viper.GetInt("z"),
		T:       viper.GetInt("t"),
		Channels: []int{
			viper.GetInt("channel"),
		},
	}
	result, err := c.ReadTile(ctx, req)
	if err != nil {
		return err
	}

	plane := result.Plane(0)
	lo, hi, mean := stats(plane)
	fmt.Printf("tile %s: min=%.1f max=%.1f mean=%.2f\n", result.Request, lo, hi, mean)

	if out := viper.GetString("out"); out != "" {
		if err := writePNG(out, plane, result.Request.Width, result.Request.Height, lo, hi); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", out)
	}
	return nil
}

// buildFleet hosts the demo image on every simulated server, 5 pyramid
// levels from 2048 down.
func buildFleet(imageID string, servers int) *gatewaytest.Fleet {
	if servers < 1 {
		servers = 1
	}
	fleet := gatewaytest.NewFleet()
	for i := 0; i < servers; i++ {
		srv := fleet.AddServer(fmt.Sprintf("sim-%d:4064", i+1))
		srv.AddImage(gatewaytest.Image{
			ID:       imageID,
			Group:    "demo-lab",
			Levels:   gatewaytest.Pyramid(2048, 2048, 5),
			Channels: 3,
			SizeZ:    1,
			SizeT:    1,
			Format:   pixel.Format{Type: pixel.Uint16, Order: pixel.BigEndian, Layout: pixel.Separated},
		})
	}
	return fleet
}

func stats(plane []float64) (lo, hi, mean float64) {
	lo = math.Inf(1)
	hi = math.Inf(-1)
	var sum float64
	for _, v := range plane {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		sum += v
	}
	return lo, hi, sum / float64(len(plane))
}

// writePNG maps the plane's value range onto 8-bit gray and writes it out.
func writePNG(path string, plane []float64, w, h int, lo, hi float64) error {
	img := image.NewGray(image.Rect(0, 0, w, h))
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			img.Pix[j*img.Stride+i] = uint8((plane[j*w+i] - lo) * scale)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
