package wakelock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	acquisitions *prometheus.CounterVec
	releases     *prometheus.CounterVec
	fallbacks    prometheus.Counter
	failures     prometheus.Counter
}

// newMetrics builds the orchestrator counters. A nil registerer leaves
// them unregistered, which keeps tests isolated.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		acquisitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wakeguard_acquisitions_total",
			Help: "Successful wake lock acquisitions by strategy.",
		}, []string{"strategy"}),
		releases: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wakeguard_releases_total",
			Help: "Wake lock releases by reason.",
		}, []string{"reason"}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "wakeguard_fallbacks_total",
			Help: "Transitions from a failed strategy to the next one.",
		}),
		failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "wakeguard_request_failures_total",
			Help: "Requests that exhausted every strategy.",
		}),
	}
}
