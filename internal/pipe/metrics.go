package pipe

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	inFlight    prometheus.Gauge
	submissions *prometheus.CounterVec
	gcEvictions prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "suzuka",
			Subsystem: "pipe",
			Name:      "in_flight",
			Help:      "number of admitted transactions not yet written to DA",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "suzuka",
			Subsystem: "pipe",
			Name:      "submissions_total",
			Help:      "number of transaction submissions by mempool status",
		}, []string{"status"}),
		gcEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suzuka",
			Subsystem: "pipe",
			Name:      "gc_evictions_total",
			Help:      "number of transactions evicted by mempool garbage collection",
		}),
	}
	if reg == nil {
		return m, nil
	}
	err := errors.Join(
		reg.Register(m.inFlight),
		reg.Register(m.submissions),
		reg.Register(m.gcEvictions),
	)
	return m, err
}
