package metrics

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Collector centralizes all metrics recording with proper labeling.
// A nil *Collector is safe to call and records nothing, so components
// can take it optionally.
type Collector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

// NewCollector creates a new Collector instance
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return &Collector{
		prometheus: NewPrometheusMetrics(namespace, logger),
		logger:     logger,
	}
}

// NewCollectorWithMetrics wraps an existing PrometheusMetrics (used in tests
// with a private registry).
func NewCollectorWithMetrics(pm *PrometheusMetrics, logger *zap.Logger) *Collector {
	return &Collector{
		prometheus: pm,
		logger:     logger,
	}
}

// RecordRequest records a request with timing
func (c *Collector) RecordRequest(path, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.prometheus.RecordRequest(path, status, duration)

	c.logger.Debug("Recorded request metric",
		zap.String("path", path),
		zap.String("status", status),
		zap.Duration("duration", duration))
}

// RecordCacheHit records a successful cache hit
func (c *Collector) RecordCacheHit(provider string) {
	if c == nil {
		return
	}
	c.prometheus.RecordCacheHit(provider)

	c.logger.Debug("Recorded cache hit metric",
		zap.String("provider", provider))
}

// RecordCacheMiss records a cache miss
func (c *Collector) RecordCacheMiss(provider string) {
	if c == nil {
		return
	}
	c.prometheus.RecordCacheMiss(provider)

	c.logger.Debug("Recorded cache miss metric",
		zap.String("provider", provider))
}

// RecordStaleServed records that a stale resource was served
func (c *Collector) RecordStaleServed(provider string) {
	if c == nil {
		return
	}
	c.prometheus.RecordStaleServed(provider)

	c.logger.Debug("Recorded stale served metric",
		zap.String("provider", provider))
}

// RecordPlaceholderPrimed records a placeholder write during priming
func (c *Collector) RecordPlaceholderPrimed(provider string) {
	if c == nil {
		return
	}
	c.prometheus.RecordPlaceholderPrimed(provider)
}

// RecordConsume records one enrichment pass
func (c *Collector) RecordConsume(mode string, duration time.Duration) {
	if c == nil {
		return
	}
	c.prometheus.RecordConsume(mode, duration)

	c.logger.Debug("Recorded consume metric",
		zap.String("mode", mode),
		zap.Duration("duration", duration))
}

// RecordMatchedURL records a URL matched to a provider
func (c *Collector) RecordMatchedURL(provider string) {
	if c == nil {
		return
	}
	c.prometheus.RecordMatchedURL(provider)
}

// RecordEmbed records a rendered embed by resource type
func (c *Collector) RecordEmbed(resourceType string) {
	if c == nil {
		return
	}
	c.prometheus.RecordEmbed(resourceType)
}

// RecordRefreshScheduled records a scheduled refresh task
func (c *Collector) RecordRefreshScheduled(reason string) {
	if c == nil {
		return
	}
	c.prometheus.RecordRefreshScheduled(reason)

	c.logger.Debug("Recorded refresh scheduled metric",
		zap.String("reason", reason))
}

// RecordFetchDuration records a provider endpoint fetch
func (c *Collector) RecordFetchDuration(provider, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.prometheus.RecordFetchDuration(provider, outcome, duration)

	c.logger.Debug("Recorded fetch metric",
		zap.String("provider", provider),
		zap.String("outcome", outcome),
		zap.Duration("duration", duration))
}

// RecordError records an error by type
func (c *Collector) RecordError(errorType string) {
	if c == nil {
		return
	}
	c.prometheus.RecordError(errorType)

	c.logger.Debug("Recorded error metric",
		zap.String("error_type", errorType))
}

// IncActiveRequests increments active request counter
func (c *Collector) IncActiveRequests() {
	if c == nil {
		return
	}
	c.prometheus.IncActiveRequests()
}

// DecActiveRequests decrements active request counter
func (c *Collector) DecActiveRequests() {
	if c == nil {
		return
	}
	c.prometheus.DecActiveRequests()
}

// RecordCompression records compression metrics (ratio and bytes saved)
func (c *Collector) RecordCompression(algorithm string, originalSize, compressedSize int) {
	if c == nil || originalSize <= 0 {
		return
	}

	ratio := float64(compressedSize) / float64(originalSize)
	c.prometheus.RecordCompressionRatio(algorithm, ratio)

	bytesSaved := int64(originalSize - compressedSize)
	c.prometheus.RecordBytesSaved(algorithm, bytesSaved)

	c.logger.Debug("Recorded compression metric",
		zap.String("algorithm", algorithm),
		zap.Int("original_size", originalSize),
		zap.Int("compressed_size", compressedSize),
		zap.Float64("ratio", ratio),
		zap.Int64("bytes_saved", bytesSaved))
}

// RecordDecompressionError records a decompression failure
func (c *Collector) RecordDecompressionError(algorithm string) {
	if c == nil {
		return
	}
	c.prometheus.RecordDecompressionError(algorithm)

	c.logger.Debug("Recorded decompression error metric",
		zap.String("algorithm", algorithm))
}

// ServeHTTP serves Prometheus metrics via HTTP
func (c *Collector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	c.prometheus.ServeHTTP(ctx)
}
