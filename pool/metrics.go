package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pool's counters. One Metrics instance belongs to one
// registerer; pools sharing a Metrics share the counters.
type Metrics struct {
	acquires       prometheus.Counter
	fallbacks      prometheus.Counter
	handlesCreated prometheus.Counter
	growthFailures prometheus.Counter
}

// NewMetrics registers the pool counters on reg. A nil reg gets a private
// registry, which keeps repeated construction (tests, short-lived pools) from
// colliding on the process-global default.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		acquires: factory.NewCounter(prometheus.CounterOpts{
			Name: "tilebridge_pool_acquires_total",
			Help: "Handle acquisitions requested.",
		}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "tilebridge_pool_acquire_fallbacks_total",
			Help: "Acquisitions that timed out and shared the main handle.",
		}),
		handlesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "tilebridge_pool_handles_created_total",
			Help: "Remote pixel-store handles created, the main handle included.",
		}),
		growthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "tilebridge_pool_growth_failures_total",
			Help: "Asynchronous handle creations that failed.",
		}),
	}
}
