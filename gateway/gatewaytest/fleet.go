// Package gatewaytest provides an in-memory stand-in for the vendor client:
// a fleet of simulated image servers with deterministic pixel pyramids.
//
// Tile bytes are generated analytically from SampleValue, so any test (or the
// demo CLI) can predict the exact samples a read must produce without
// shipping fixture files. The simulation also enforces the vendor contract
// that a pixel store serves one call at a time, which makes handle-locking
// bugs fail loudly instead of silently corrupting level state.
package gatewaytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tilebridge/directory"
	"tilebridge/gateway"
	"tilebridge/pixel"
)

// ErrConcurrentUse is returned when two calls overlap on one pixel store,
// which real vendor sessions do not tolerate.
var ErrConcurrentUse = errors.New("gatewaytest: concurrent calls on a single pixel store")

// SampleValue is the deterministic pixel function of the simulated images.
// Values stay within [0,113) so every supported sample type can hold them.
func SampleValue(level, channel, z, t, x, y int) float64 {
	v := x*7 + y*13 + channel*31 + level*17 + z*3 + t*5
	return float64(v % 113)
}

// Pyramid builds level descriptions starting at w×h and halving down,
// levels entries in total.
func Pyramid(w, h, levels int) []gateway.ResolutionDescription {
	descs := make([]gateway.ResolutionDescription, levels)
	for i := 0; i < levels; i++ {
		descs[i] = gateway.ResolutionDescription{Width: w, Height: h}
		w /= 2
		h /= 2
	}
	return descs
}

// Image is one simulated image hosted by a server.
type Image struct {
	ID       string
	Group    string
	Levels   []gateway.ResolutionDescription
	Channels int
	SizeZ    int
	SizeT    int
	Format   pixel.Format
}

func (img Image) description() gateway.ImageDescription {
	return gateway.ImageDescription{
		Levels:   img.Levels,
		Channels: img.Channels,
		SizeZ:    img.SizeZ,
		SizeT:    img.SizeT,
		Format:   img.Format,
	}
}

// Server is one simulated image server.
type Server struct {
	addr    string
	latency time.Duration // applied per tile read, for contention tests

	mu     sync.Mutex
	images map[string]Image
	down   bool
}

// AddImage hosts an image on this server.
func (s *Server) AddImage(img Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[img.ID] = img
}

// SetLatency makes every tile read on this server take at least d.
func (s *Server) SetLatency(d time.Duration) {
	s.latency = d
}

// SetDown makes future dials to this server fail.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// Fleet is a set of simulated servers. It implements gateway.Dialer.
type Fleet struct {
	mu      sync.Mutex
	servers map[string]*Server
}

// NewFleet creates an empty fleet.
func NewFleet() *Fleet {
	return &Fleet{servers: make(map[string]*Server)}
}

// AddServer adds a simulated server under the given address.
func (f *Fleet) AddServer(addr string) *Server {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &Server{addr: addr, images: make(map[string]Image)}
	f.servers[addr] = s
	return s
}

// Directory returns a static directory listing the whole fleet.
func (f *Fleet) Directory() *directory.Static {
	f.mu.Lock()
	defer f.mu.Unlock()
	infos := make([]directory.ServerInfo, 0, len(f.servers))
	for addr := range f.servers {
		infos = append(infos, directory.ServerInfo{Addr: addr, Weight: 1})
	}
	return directory.NewStatic(infos...)
}

// Dial opens a session to one simulated server.
func (f *Fleet) Dial(_ context.Context, addr string) (gateway.Connection, error) {
	f.mu.Lock()
	srv, ok := f.servers[addr]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("gatewaytest: no server at %s", addr)
	}
	srv.mu.Lock()
	down := srv.down
	srv.mu.Unlock()
	if down {
		return nil, fmt.Errorf("gatewaytest: server %s is down", addr)
	}
	return &conn{server: srv, group: "default", alive: true}, nil
}
