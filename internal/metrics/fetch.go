// Package metrics exposes Prometheus metrics of record fetches and of the stub remote.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ubuntu/recordfeed/internal/api"
	"github.com/ubuntu/recordfeed/internal/constants"
)

// Fetch counts fetches and their durations, by operation and outcome.
type Fetch struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewFetch registers the fetch metrics in reg.
func NewFetch(reg prometheus.Registerer) *Fetch {
	return &Fetch{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: constants.MetricsNamespace,
				Name:      "fetch_requests_total",
				Help:      "Tracks the number of record fetches, by outcome.",
			}, []string{"operation", "outcome"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: constants.MetricsNamespace,
				Name:      "fetch_duration_seconds",
				Help:      "Tracks the latencies of record fetches.",
				// Max of 10.24, the default response timeout is 10s.
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			}, []string{"operation"},
		),
	}
}

// ObserveFetch records one completed fetch.
func (f *Fetch) ObserveFetch(operation string, kind api.Kind, d time.Duration) {
	f.requests.WithLabelValues(operation, string(kind)).Inc()
	f.duration.WithLabelValues(operation).Observe(d.Seconds())
}
