package prototype

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Acquire results, used as the "result" label.
const (
	resultHit             = "hit"
	resultMiss            = "miss"
	resultNotInstanceable = "not_instanceable"
	resultError           = "error"
)

type metrics struct {
	acquires *prometheus.CounterVec
	builds   prometheus.Counter
	live     prometheus.Gauge
}

// newMetrics registers with reg; a nil reg leaves the metrics unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		acquires: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "instkey",
			Subsystem: "prototype",
			Name:      "acquires_total",
			Help:      "Prototype acquisitions by result.",
		}, []string{"result"}),
		builds: f.NewCounter(prometheus.CounterOpts{
			Namespace: "instkey",
			Subsystem: "prototype",
			Name:      "builds_total",
			Help:      "Prototypes built.",
		}),
		live: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "instkey",
			Subsystem: "prototype",
			Name:      "live",
			Help:      "Prototypes currently referenced by at least one location.",
		}),
	}
}
