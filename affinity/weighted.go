package affinity

import (
	"fmt"
	"math/rand"

	"tilebridge/directory"
)

// Weighted picks servers randomly in proportion to their published weight.
// Servers with weight 0 are never picked unless every server has weight 0,
// in which case the pick degenerates to uniform random.
type Weighted struct{}

func (p *Weighted) Pick(_ string, servers []directory.ServerInfo) (*directory.ServerInfo, error) {
	if len(servers) == 0 {
		return nil, errNoServers
	}

	totalWeight := 0
	for _, srv := range servers {
		totalWeight += srv.Weight
	}
	if totalWeight <= 0 {
		return &servers[rand.Intn(len(servers))], nil
	}

	r := rand.Intn(totalWeight)
	for i := range servers {
		r -= servers[i].Weight
		if r < 0 {
			return &servers[i], nil
		}
	}

	return nil, fmt.Errorf("affinity: unexpected fall-through in weighted selection")
}

func (p *Weighted) Name() string {
	return "Weighted"
}
