// Package observability holds the prometheus collector, the OpenTelemetry
// tracer setup and the HTTP middleware that feeds both.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Synchronization outcomes, one per operation and path taken
	SyncOperations *prometheus.CounterVec

	// Admin API calls
	RemoteCalls    *prometheus.CounterVec
	RemoteDuration *prometheus.HistogramVec

	// Local store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec

	// Analytics
	PageViews *prometheus.CounterVec
}

// NewCollector creates a new metrics collector with the given namespace.
// Each collector owns a private registry, so tests can build as many as they like.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		SyncOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pagesync_operations_total",
				Help:      "Page operations by the path that served them (remote, local, mirror_failed, not_found)",
			},
			[]string{"operation", "path"},
		),
		RemoteCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shopify_requests_total",
				Help:      "Admin API calls by outcome",
			},
			[]string{"operation", "outcome"},
		),
		RemoteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "shopify_request_duration_seconds",
				Help:      "Admin API call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of local store operations",
			},
			[]string{"operation", "status"},
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Local store operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		PageViews: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "page_views_recorded_total",
				Help:      "Storefront page views recorded",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.SyncOperations,
		c.RemoteCalls,
		c.RemoteDuration,
		c.StoreOperations,
		c.StoreDuration,
		c.PageViews,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RecordSync counts one orchestrator outcome.
func (c *Collector) RecordSync(operation, path string) {
	if c == nil {
		return
	}
	c.SyncOperations.WithLabelValues(operation, path).Inc()
}

// RecordRemote counts one Admin API call.
func (c *Collector) RecordRemote(operation, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.RemoteCalls.WithLabelValues(operation, outcome).Inc()
	c.RemoteDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordStore counts one local store call.
func (c *Collector) RecordStore(operation string, err error, d time.Duration) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.StoreOperations.WithLabelValues(operation, status).Inc()
	c.StoreDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordPageView counts one storefront view by whether it was stored.
func (c *Collector) RecordPageView(err error) {
	if c == nil {
		return
	}
	status := "recorded"
	if err != nil {
		status = "failed"
	}
	c.PageViews.WithLabelValues(status).Inc()
}

// RecordHTTP counts one served request.
func (c *Collector) RecordHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
