package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

type PrometheusMetrics struct {
	httpHandler func(*fasthttp.RequestCtx)
	logger      *zap.Logger

	refreshesTotal  *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	queueDepth      *prometheus.GaugeVec
	workerPoolSize  prometheus.Gauge
}

func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	if namespace == "" {
		namespace = "monocle"
	}

	pm := &PrometheusMetrics{
		logger: logger,
	}

	pm.refreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rd",
			Name:      "refreshes_total",
			Help:      "Total number of refresh attempts by outcome",
		},
		[]string{"status"},
	)

	pm.refreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rd",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refresh operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	pm.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rd",
			Name:      "queue_depth",
			Help:      "Current depth of refresh queues",
		},
		[]string{"queue"},
	)

	pm.workerPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rd",
			Name:      "worker_pool_size",
			Help:      "Number of refresh workers",
		},
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(pm.refreshesTotal)
	registry.MustRegister(pm.refreshDuration)
	registry.MustRegister(pm.queueDepth)
	registry.MustRegister(pm.workerPoolSize)

	gatherer := prometheus.Gatherer(registry)
	handler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})

	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(handler)

	logger.Info("Prometheus metrics initialized for refresh daemon",
		zap.String("namespace", namespace))

	return pm
}

func (pm *PrometheusMetrics) RecordRefresh(status string, seconds float64) {
	pm.refreshesTotal.WithLabelValues(status).Inc()
	pm.refreshDuration.Observe(seconds)
}

func (pm *PrometheusMetrics) SetQueueDepth(queue string, depth int) {
	pm.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (pm *PrometheusMetrics) SetWorkerPoolSize(size int) {
	pm.workerPoolSize.Set(float64(size))
}

func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}
