package affinity

import (
	"sync/atomic"

	"tilebridge/directory"
)

// RoundRobin spreads handle creation evenly across the fleet in order.
// Uses an atomic counter for lock-free, goroutine-safe operation.
type RoundRobin struct {
	counter int64
}

// Pick selects the next server in round-robin order, ignoring the image id.
func (p *RoundRobin) Pick(_ string, servers []directory.ServerInfo) (*directory.ServerInfo, error) {
	if len(servers) == 0 {
		return nil, errNoServers
	}
	index := atomic.AddInt64(&p.counter, 1) % int64(len(servers))
	return &servers[index], nil
}

func (p *RoundRobin) Name() string {
	return "RoundRobin"
}
