package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the service. It implements mirror.Observer.
type Metrics struct {
	ResolutionsTotal     *prometheus.CounterVec
	ProviderQueriesTotal *prometheus.CounterVec
	ResolveDuration      prometheus.Histogram
	HTTPRequestsTotal    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates the collectors and registers them with registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		ResolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackmirror_resolutions_total",
				Help: "Total number of track resolutions by outcome",
			},
			[]string{"outcome"},
		),
		ProviderQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackmirror_provider_queries_total",
				Help: "Total number of provider queries by source and status",
			},
			[]string{"source", "status"},
		),
		ResolveDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trackmirror_resolve_duration_seconds",
				Help:    "Time spent resolving a reference track",
				Buckets: prometheus.DefBuckets,
			},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackmirror_http_requests_total",
				Help: "Total number of HTTP requests by path and status code",
			},
			[]string{"path", "status"},
		),
		registry: registry,
	}
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) QueryObserved(source, status string) {
	m.ProviderQueriesTotal.WithLabelValues(source, status).Inc()
}

func (m *Metrics) ResolutionObserved(outcome string, elapsed time.Duration) {
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
	m.ResolveDuration.Observe(elapsed.Seconds())
}
