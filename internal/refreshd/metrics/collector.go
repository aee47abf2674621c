package metrics

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Collector is the daemon's metrics facade. A nil *Collector is safe
// and records nothing.
type Collector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return &Collector{
		prometheus: NewPrometheusMetrics(namespace, logger),
		logger:     logger,
	}
}

func (c *Collector) RecordRefresh(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.prometheus.RecordRefresh(status, duration.Seconds())

	c.logger.Debug("Recorded refresh metric",
		zap.String("status", status),
		zap.Duration("duration", duration))
}

func (c *Collector) SetQueueDepth(queue string, depth int) {
	if c == nil {
		return
	}
	c.prometheus.SetQueueDepth(queue, depth)
}

func (c *Collector) SetWorkerPoolSize(size int) {
	if c == nil {
		return
	}
	c.prometheus.SetWorkerPoolSize(size)
}

func (c *Collector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	if c == nil {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	c.prometheus.ServeHTTP(ctx)
}
