// Package affinity decides which server the handle factory probes first when
// the caller expresses no preference.
//
// Three strategies are implemented:
//   - RoundRobin:  homogeneous fleets, spread handle creation evenly
//   - Weighted:    heterogeneous fleets (different CPU/memory per server)
//   - ImageHash:   route the same image to the same server, so its tile
//     cache and open pixel buffers stay warm
package affinity

import (
	"fmt"

	"tilebridge/directory"
)

// Picker selects the first server to probe for a given image. The factory
// falls through to the remaining servers on failure, so a Picker chooses the
// starting point, not the only candidate.
//
// Called on every handle creation — implementations must be goroutine-safe.
type Picker interface {
	Pick(imageID string, servers []directory.ServerInfo) (*directory.ServerInfo, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

var errNoServers = fmt.Errorf("affinity: no servers available")
