package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transfer outcomes recorded in metrics.
const (
	OutcomeCreated  = "created"
	OutcomeExisting = "existing"
	OutcomeUpdated  = "updated"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Metrics collects transfer counters for the bridge service. A nil *Metrics
// records nothing.
type Metrics struct {
	transfers *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics creates the transfer collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridge",
				Name:      "transfers_total",
				Help:      "Total number of transfer requests by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridge",
				Name:      "transfer_bytes_total",
				Help:      "Total payload bytes moved between stores",
			},
			[]string{"direction"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bridge",
				Name:      "transfer_duration_seconds",
				Help:      "Transfer duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"direction"},
		),
	}

	for _, c := range []prometheus.Collector{m.transfers, m.bytes, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(direction, outcome string, bytes int64, started time.Time) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(direction, outcome).Inc()
	if bytes > 0 {
		m.bytes.WithLabelValues(direction).Add(float64(bytes))
	}
	m.duration.WithLabelValues(direction).Observe(time.Since(started).Seconds())
}
