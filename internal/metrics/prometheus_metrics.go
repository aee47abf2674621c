// Package metrics collects and exposes gateway metrics via Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// PrometheusMetrics provides high-performance metrics collection using Prometheus
type PrometheusMetrics struct {
	// Request metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Cache metrics
	cacheHitsTotal    *prometheus.CounterVec
	cacheMissesTotal  *prometheus.CounterVec
	cacheHitRatio     *prometheus.GaugeVec
	staleServedTotal  *prometheus.CounterVec
	placeholdersTotal *prometheus.CounterVec

	// Consume metrics
	consumeDuration  *prometheus.HistogramVec
	matchedURLsTotal *prometheus.CounterVec
	embedsTotal      *prometheus.CounterVec

	// Refresh metrics
	refreshScheduledTotal *prometheus.CounterVec
	fetchDuration         *prometheus.HistogramVec

	// System metrics
	activeRequests prometheus.Gauge
	errorRate      *prometheus.CounterVec

	// Compression metrics
	cacheCompressionRatio        *prometheus.HistogramVec
	cacheBytesSavedTotal         *prometheus.CounterVec
	cacheDecompressionErrorTotal *prometheus.CounterVec

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewPrometheusMetrics creates a new Prometheus-based metrics collector
func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewPrometheusMetricsWithRegistry creates a new Prometheus-based metrics collector with custom registry
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	pm := &PrometheusMetrics{
		logger: logger,
	}

	// Request metrics
	pm.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gw",
			Name:      "requests_total",
			Help:      "Total number of requests processed",
		},
		[]string{"path", "status"},
	)

	pm.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gw",
			Name:      "request_duration_seconds",
			Help:      "Time taken to process requests",
			Buckets:   prometheus.DefBuckets, // Standard buckets: 0.005s to 10s
		},
		[]string{"path", "status"},
	)

	// Cache metrics
	pm.cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gw",
			Name:      "cache_hits_total",
			Help:      "Total number of resource cache hits",
		},
		[]string{"provider"},
	)

	pm.cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gw",
			Name:      "cache_misses_total",
			Help:      "Total number of resource cache misses",
		},
		[]string{"provider"},
	)

	pm.cacheHitRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gw",
			Name:      "cache_hit_ratio",
			Help:      "Cache hit ratio (0-1) per provider",
		},
		[]string{"provider"},
	)

	pm.staleServedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gw",
			Name:      "stale_served_total",
			Help:      "Total number of stale resources served while refresh was scheduled",
		},
		[]string{"provider"},
	)

	pm.placeholdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gw",
			Name:      "placeholders_total",
			Help:      "Total number of placeholder resources primed into the cache",
		},
		[]string{"provider"},
	)

	// Consume metrics
	pm.consumeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gw",
			Name:      "consume_duration_seconds",
			Help:      "Time taken to enrich a text or HTML fragment",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"mode"}, // mode: text, html, prefetch
	)

	pm.matchedURLsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gw",
			Name:      "matched_urls_total",
			Help:      "Total number of URLs matched to a provider during enrichment",
		},
		[]string{"provider"},
	)

	pm.embedsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gw",
			Name:      "embeds_total",
			Help:      "Total number of embeds rendered into consumed content",
		},
		[]string{"resource_type"},
	)

	// Refresh metrics
	pm.refreshScheduledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gw",
			Name:      "refresh_scheduled_total",
			Help:      "Total number of refresh tasks scheduled",
		},
		[]string{"reason"}, // reason: miss, stale
	)

	pm.fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gw",
			Name:      "fetch_duration_seconds",
			Help:      "Time taken to fetch a resource from a provider endpoint",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"provider", "outcome"}, // outcome: success, failure
	)

	// System metrics
	pm.activeRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gw",
			Name:      "active_requests",
			Help:      "Number of currently active requests",
		},
	)

	pm.errorRate = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gw",
			Name:      "errors_total",
			Help:      "Total number of errors by type",
		},
		[]string{"error_type"},
	)

	// Compression metrics
	pm.cacheCompressionRatio = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "compression_ratio",
			Help:      "Compression ratio (compressed_size / original_size)",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"algorithm"},
	)

	pm.cacheBytesSavedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "bytes_saved_total",
			Help:      "Total bytes saved by compression",
		},
		[]string{"algorithm"},
	)

	pm.cacheDecompressionErrorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "decompression_errors_total",
			Help:      "Total decompression failures (treated as cache miss)",
		},
		[]string{"algorithm"},
	)

	// Register all metrics
	registerer.MustRegister(
		pm.requestsTotal,
		pm.requestDuration,
		pm.cacheHitsTotal,
		pm.cacheMissesTotal,
		pm.cacheHitRatio,
		pm.staleServedTotal,
		pm.placeholdersTotal,
		pm.consumeDuration,
		pm.matchedURLsTotal,
		pm.embedsTotal,
		pm.refreshScheduledTotal,
		pm.fetchDuration,
		pm.activeRequests,
		pm.errorRate,
		pm.cacheCompressionRatio,
		pm.cacheBytesSavedTotal,
		pm.cacheDecompressionErrorTotal,
	)

	// Create HTTP handler - registerer implements Gatherer interface
	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		// Fallback to default gatherer if registerer doesn't implement Gatherer
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Debug("Prometheus metrics initialized")
	return pm
}

// RecordRequest records a request with timing
func (pm *PrometheusMetrics) RecordRequest(path, status string, duration time.Duration) {
	pm.requestsTotal.WithLabelValues(path, status).Inc()
	pm.requestDuration.WithLabelValues(path, status).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit and updates hit ratio
func (pm *PrometheusMetrics) RecordCacheHit(provider string) {
	pm.cacheHitsTotal.WithLabelValues(provider).Inc()
	pm.updateCacheHitRatio(provider)
}

// RecordCacheMiss records a cache miss and updates hit ratio
func (pm *PrometheusMetrics) RecordCacheMiss(provider string) {
	pm.cacheMissesTotal.WithLabelValues(provider).Inc()
	pm.updateCacheHitRatio(provider)
}

// RecordStaleServed records that a stale resource was served
func (pm *PrometheusMetrics) RecordStaleServed(provider string) {
	pm.staleServedTotal.WithLabelValues(provider).Inc()
}

// RecordPlaceholderPrimed records a placeholder write during cache priming
func (pm *PrometheusMetrics) RecordPlaceholderPrimed(provider string) {
	pm.placeholdersTotal.WithLabelValues(provider).Inc()
}

// RecordConsume records the duration of one enrichment pass
func (pm *PrometheusMetrics) RecordConsume(mode string, duration time.Duration) {
	pm.consumeDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordMatchedURL records a URL matched to a provider
func (pm *PrometheusMetrics) RecordMatchedURL(provider string) {
	pm.matchedURLsTotal.WithLabelValues(provider).Inc()
}

// RecordEmbed records a rendered embed by resource type
func (pm *PrometheusMetrics) RecordEmbed(resourceType string) {
	pm.embedsTotal.WithLabelValues(resourceType).Inc()
}

// RecordRefreshScheduled records a scheduled refresh task
func (pm *PrometheusMetrics) RecordRefreshScheduled(reason string) {
	pm.refreshScheduledTotal.WithLabelValues(reason).Inc()
}

// RecordFetchDuration records a provider endpoint fetch
func (pm *PrometheusMetrics) RecordFetchDuration(provider, outcome string, duration time.Duration) {
	pm.fetchDuration.WithLabelValues(provider, outcome).Observe(duration.Seconds())
}

// RecordError records an error by type
func (pm *PrometheusMetrics) RecordError(errorType string) {
	pm.errorRate.WithLabelValues(errorType).Inc()
}

// IncActiveRequests increments active request counter
func (pm *PrometheusMetrics) IncActiveRequests() {
	pm.activeRequests.Inc()
}

// DecActiveRequests decrements active request counter
func (pm *PrometheusMetrics) DecActiveRequests() {
	pm.activeRequests.Dec()
}

// ServeHTTP serves Prometheus metrics via HTTP
func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}

// updateCacheHitRatio calculates and updates cache hit ratio
func (pm *PrometheusMetrics) updateCacheHitRatio(provider string) {
	// Get current values
	hits := pm.getCounterValue(pm.cacheHitsTotal.WithLabelValues(provider))
	misses := pm.getCounterValue(pm.cacheMissesTotal.WithLabelValues(provider))

	total := hits + misses
	if total > 0 {
		ratio := hits / total
		pm.cacheHitRatio.WithLabelValues(provider).Set(ratio)
	}
}

// getCounterValue extracts current value from a counter (helper function)
func (pm *PrometheusMetrics) getCounterValue(counter prometheus.Counter) float64 {
	// Use a metric DTO to read the current value
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		pm.logger.Warn("Failed to read counter value", zap.Error(err))
		return 0
	}
	return metric.GetCounter().GetValue()
}

// RecordCompressionRatio records the compression ratio for a cached resource
func (pm *PrometheusMetrics) RecordCompressionRatio(algorithm string, ratio float64) {
	pm.cacheCompressionRatio.WithLabelValues(algorithm).Observe(ratio)
}

// RecordBytesSaved records bytes saved by compression
func (pm *PrometheusMetrics) RecordBytesSaved(algorithm string, bytesSaved int64) {
	if bytesSaved > 0 {
		pm.cacheBytesSavedTotal.WithLabelValues(algorithm).Add(float64(bytesSaved))
	}
}

// RecordDecompressionError records a decompression failure
func (pm *PrometheusMetrics) RecordDecompressionError(algorithm string) {
	pm.cacheDecompressionErrorTotal.WithLabelValues(algorithm).Inc()
}
