// Package directory tracks which image servers are currently live.
//
// Servers announce themselves under a shared etcd prefix with a TTL lease, so
// a crashed server disappears from the fleet automatically once its lease
// expires. Clients discover the fleet with a prefix read and follow changes
// with a watch. A Static directory backs tests and single-server deployments
// where no etcd is available.
package directory

import "sync"

// ServerInfo is the metadata one image server publishes about itself.
type ServerInfo struct {
	Addr    string
	Weight  int // relative capacity, consumed by the affinity strategies
	Version string
}

// Directory is the fleet view the connection provider consumes.
type Directory interface {
	// Announce publishes a server under the fleet prefix with a TTL lease.
	Announce(info ServerInfo, ttlSeconds int64) error

	// Retire removes a server from the fleet. Called on graceful shutdown;
	// a crash is covered by lease expiry instead.
	Retire(addr string) error

	// Servers returns the currently live fleet.
	Servers() ([]ServerInfo, error)

	// Watch emits the full fleet list whenever membership changes.
	Watch() <-chan []ServerInfo
}

// Static is a fixed fleet. Announce and Retire mutate the in-memory list only;
// Watch never fires. Useful in tests and when the server set is known up front.
// Safe for concurrent use; the provider calls Servers from pool-growth
// goroutines while tests mutate the fleet.
type Static struct {
	mu      sync.Mutex
	servers []ServerInfo
}

// NewStatic builds a Static directory over the given servers.
func NewStatic(servers ...ServerInfo) *Static {
	return &Static{servers: servers}
}

func (s *Static) Announce(info ServerInfo, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers = append(s.servers, info)
	return nil
}

func (s *Static) Retire(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.servers[:0]
	for _, srv := range s.servers {
		if srv.Addr != addr {
			kept = append(kept, srv)
		}
	}
	s.servers = kept
	return nil
}

func (s *Static) Servers() ([]ServerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ServerInfo, len(s.servers))
	copy(out, s.servers)
	return out, nil
}

func (s *Static) Watch() <-chan []ServerInfo {
	return make(chan []ServerInfo)
}
