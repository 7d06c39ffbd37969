package node

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	batchesWritten prometheus.Counter
	batchSize      prometheus.Histogram
	writeFailures  prometheus.Counter
	blocksExecuted prometheus.Counter
	replaysSkipped prometheus.Counter
	headHeight     prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		batchesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suzuka",
			Subsystem: "da_writer",
			Name:      "batches_written_total",
			Help:      "number of transaction batches written to DA",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "suzuka",
			Subsystem: "da_writer",
			Name:      "batch_size",
			Help:      "number of transactions per DA batch",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suzuka",
			Subsystem: "da_writer",
			Name:      "write_failures_total",
			Help:      "number of DA batch writes that failed",
		}),
		blocksExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suzuka",
			Subsystem: "da_reader",
			Name:      "blocks_executed_total",
			Help:      "number of DA blocks executed",
		}),
		replaysSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suzuka",
			Subsystem: "da_reader",
			Name:      "replays_skipped_total",
			Help:      "number of already executed DA blocks skipped",
		}),
		headHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "suzuka",
			Subsystem: "da_reader",
			Name:      "head_height",
			Help:      "height of the last executed block",
		}),
	}
	if reg == nil {
		return m, nil
	}
	err := errors.Join(
		reg.Register(m.batchesWritten),
		reg.Register(m.batchSize),
		reg.Register(m.writeFailures),
		reg.Register(m.blocksExecuted),
		reg.Register(m.replaysSkipped),
		reg.Register(m.headHeight),
	)
	return m, err
}
