package settlement

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	accepted prometheus.Counter
	rejected *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suzuka",
			Subsystem: "settlement",
			Name:      "commitments_accepted_total",
			Help:      "number of block commitments accepted by settlement",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "suzuka",
			Subsystem: "settlement",
			Name:      "commitments_rejected_total",
			Help:      "number of block commitments rejected by settlement",
		}, []string{"reason"}),
	}
	if reg == nil {
		return m, nil
	}
	return m, errors.Join(reg.Register(m.accepted), reg.Register(m.rejected))
}
