package affinity

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"tilebridge/directory"
)

// ImageHash maps image ids to servers using a hash ring, so the same image is
// always probed on the same server (until the fleet changes). That keeps the
// server-side tile cache and open pixel buffers for an image warm on one node
// instead of smearing them across the fleet.
//
// Virtual nodes: each real server is mapped to N points on the ring. Without
// them a small fleet tends to cluster on the ring and load skews badly; 100
// points per server is enough for statistical uniformity.
type ImageHash struct {
	replicas int

	mu      sync.Mutex
	fleet   string                          // fingerprint of the server set the ring was built for
	ring    []uint32                        // sorted hash values on the ring
	nodes   map[uint32]directory.ServerInfo // hash value → server
}

// NewImageHash creates a hash ring with 100 virtual nodes per server.
func NewImageHash() *ImageHash {
	return &ImageHash{
		replicas: 100,
		nodes:    make(map[uint32]directory.ServerInfo),
	}
}

// Pick finds the server responsible for the image id: hash the id, then
// binary-search for the first ring point >= that hash, wrapping to the start
// of the ring when the hash is beyond the last point.
//
// The ring is rebuilt lazily whenever the fleet membership changes.
func (p *ImageHash) Pick(imageID string, servers []directory.ServerInfo) (*directory.ServerInfo, error) {
	if len(servers) == 0 {
		return nil, errNoServers
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.rebuildIfChanged(servers)

	hash := crc32.ChecksumIEEE([]byte(imageID))
	idx := sort.Search(len(p.ring), func(i int) bool {
		return p.ring[i] >= hash
	})
	if idx == len(p.ring) {
		idx = 0
	}

	srv := p.nodes[p.ring[idx]]
	return &srv, nil
}

func (p *ImageHash) Name() string {
	return "ImageHash"
}

// rebuildIfChanged re-derives the ring when the set of addresses differs from
// the one the current ring was built for. Fleets are small, so a full rebuild
// on membership change is cheaper than maintaining incremental add/remove.
func (p *ImageHash) rebuildIfChanged(servers []directory.ServerInfo) {
	addrs := make([]string, len(servers))
	for i, srv := range servers {
		addrs[i] = srv.Addr
	}
	sort.Strings(addrs)
	fleet := strings.Join(addrs, ",")
	if fleet == p.fleet {
		return
	}

	p.fleet = fleet
	p.ring = p.ring[:0]
	clear(p.nodes)
	for _, srv := range servers {
		for i := 0; i < p.replicas; i++ {
			key := fmt.Sprintf("%s#%d", srv.Addr, i)
			hash := crc32.ChecksumIEEE([]byte(key))
			p.ring = append(p.ring, hash)
			p.nodes[hash] = srv
		}
	}
	sort.Slice(p.ring, func(i, j int) bool {
		return p.ring[i] < p.ring[j]
	})
}
