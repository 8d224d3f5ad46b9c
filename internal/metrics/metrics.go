package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes ledger engine measurements to Prometheus.
type Collector struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	volume     *prometheus.CounterVec
}

// NewCollector registers the ledger metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet_ledger",
				Name:      "operations_total",
				Help:      "Ledger operations by type and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "wallet_ledger",
				Name:      "operation_duration_seconds",
				Help:      "Time spent in ledger operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		volume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet_ledger",
				Name:      "volume_minor_units_total",
				Help:      "Committed amounts in minor units.",
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(c.operations, c.duration, c.volume)
	return c
}

// RecordOperation counts an operation outcome and observes its latency.
func (c *Collector) RecordOperation(op, outcome string, d time.Duration) {
	c.operations.WithLabelValues(op, outcome).Inc()
	c.duration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordVolume adds a committed amount.
func (c *Collector) RecordVolume(op string, amount int64) {
	c.volume.WithLabelValues(op).Add(float64(amount))
}
