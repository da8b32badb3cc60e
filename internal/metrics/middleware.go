package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ubuntu/recordfeed/internal/constants"
)

// Middleware collects HTTP request metrics of the handlers it monitors.
type Middleware struct {
	buckets  []float64
	registry prometheus.Registerer
}

// New creates a new Middleware registering its metrics in registry.
func New(registry prometheus.Registerer) *Middleware {
	return &Middleware{
		buckets:  prometheus.ExponentialBuckets(0.005, 2, 12),
		registry: registry,
	}
}

// Monitor wraps handler, labeling its metrics with handlerName.
// Each handlerName must be monitored once per registry.
func (m *Middleware) Monitor(handlerName string, handler http.Handler) http.HandlerFunc {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"handler": handlerName}, m.registry)
	labels := []string{"method", "code"}

	requestsTotal := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "http_requests_total",
			Help:      "Tracks the number of HTTP requests.",
		}, labels,
	)
	requestDuration := promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Tracks the latencies for HTTP requests.",
			Buckets:   m.buckets,
		}, labels,
	)

	return promhttp.InstrumentHandlerCounter(
		requestsTotal,
		promhttp.InstrumentHandlerDuration(requestDuration, handler),
	).ServeHTTP
}

// Rejections returns a counter of the requests turned down before reaching any monitored handler, labeled with reason.
// Each reason must be counted once per registry.
func (m *Middleware) Rejections(reason string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace:   constants.MetricsNamespace,
			Name:        "http_requests_rejected_total",
			Help:        "Tracks the number of HTTP requests rejected before being handled.",
			ConstLabels: prometheus.Labels{"reason": reason},
		},
	)
}
