// Package metrics bundles the Prometheus collectors of the pricing service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors on a dedicated registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	AnalysesTotal     prometheus.Counter
	OffersPerAnalysis prometheus.Histogram
	CacheLookups      *prometheus.CounterVec
	ProductsTotal     *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_backend_requests_total",
			Help: "Total requests issued to the estimator backend.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricing_backend_request_duration_seconds",
			Help:    "Estimator backend request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricing_backend_retries_total",
			Help: "Total number of retry attempts against the estimator backend.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_backend_errors_total",
			Help: "Total number of estimator backend errors by type.",
		},
		[]string{"error_type"},
	)
	analyses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricing_analyses_total",
			Help: "Total number of competitor analyses computed.",
		},
	)
	offers := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricing_offers_per_analysis",
			Help:    "Number of raw offers submitted per analysis.",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100, 200},
		},
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_cache_lookups_total",
			Help: "Analysis cache lookups by result.",
		},
		[]string{"result"},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_products_total",
			Help: "Batch products handled by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal, analyses, offers, cacheLookups, products)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
		AnalysesTotal:     analyses,
		OffersPerAnalysis: offers,
		CacheLookups:      cacheLookups,
		ProductsTotal:     products,
	}
}

// IncRequest increments the backend requests counter.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records a backend request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveAnalysis counts one analysis over n raw offers.
func (m *Metrics) ObserveAnalysis(n int) {
	if m == nil {
		return
	}
	m.AnalysesTotal.Inc()
	m.OffersPerAnalysis.Observe(float64(n))
}

// IncCache records a cache hit or miss.
func (m *Metrics) IncCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// IncProduct records a batch product outcome.
func (m *Metrics) IncProduct(outcome string) {
	if m == nil {
		return
	}
	m.ProductsTotal.WithLabelValues(outcome).Inc()
}
