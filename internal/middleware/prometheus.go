package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PrometheusMetrics Prometheus 指标收集器
type PrometheusMetrics struct {
	logger *logrus.Logger

	// HTTP 请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 扫描指标
	scansTotal      *prometheus.CounterVec
	scansInProgress prometheus.Gauge
	scanDuration    *prometheus.HistogramVec
	scanFailures    *prometheus.CounterVec

	// 情报查询指标
	intelLookupsTotal   *prometheus.CounterVec
	intelLookupDuration *prometheus.HistogramVec
	intelCacheHits      prometheus.Counter

	// 分类器指标
	classifierInferences *prometheus.CounterVec

	// Worker Pool 指标
	workerPoolSize      prometheus.Gauge
	workerPoolActive    prometheus.Gauge
	workerPoolQueueSize prometheus.Gauge
}

// NewPrometheusMetrics 创建指标收集器
func NewPrometheusMetrics(logger *logrus.Logger, namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "apk_verdict"
	}

	pm := &PrometheusMetrics{
		logger: logger,

		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"method", "path"},
		),

		scansTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Total number of completed scans by decision",
			},
			[]string{"decision"}, // BENIGN / SUSPICIOUS / MALICIOUS
		),
		scansInProgress: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scans_in_progress",
				Help:      "Number of scans currently running",
			},
		),
		scanDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scan_duration_seconds",
				Help:      "Full pipeline duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"source"}, // upload / watcher / queue
		),
		scanFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scan_failures_total",
				Help:      "Total number of failed scans by error kind",
			},
			[]string{"kind"},
		),

		intelLookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intel_lookups_total",
				Help:      "Total number of threat intel lookups by service and outcome",
			},
			[]string{"service", "status"}, // found / not_found / unavailable
		),
		intelLookupDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "intel_lookup_duration_seconds",
				Help:      "Threat intel lookup duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30},
			},
			[]string{"service"},
		),
		intelCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intel_cache_hits_total",
				Help:      "Total number of intel cache hits",
			},
		),

		classifierInferences: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifier_inferences_total",
				Help:      "Total number of classifier inferences by outcome",
			},
			[]string{"status"}, // success / model_unavailable / feature_mismatch
		),

		workerPoolSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_size",
				Help:      "Total number of workers in the pool",
			},
		),
		workerPoolActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_active",
				Help:      "Number of active workers",
			},
		),
		workerPoolQueueSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_queue_size",
				Help:      "Number of scans waiting in queue",
			},
		),
	}

	logger.Info("Prometheus metrics initialized")
	return pm
}

// HTTPMiddleware HTTP 请求监控中间件
func (pm *PrometheusMetrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		pm.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		pm.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

// Handler 返回 Prometheus HTTP Handler
func (pm *PrometheusMetrics) Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordScanStarted 记录扫描开始
func (pm *PrometheusMetrics) RecordScanStarted() {
	pm.scansInProgress.Inc()
}

// RecordScanCompleted 记录扫描完成
func (pm *PrometheusMetrics) RecordScanCompleted(decision, source string, duration time.Duration) {
	pm.scansInProgress.Dec()
	pm.scansTotal.WithLabelValues(decision).Inc()
	pm.scanDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordScanFailed 记录扫描失败
func (pm *PrometheusMetrics) RecordScanFailed(kind string) {
	pm.scansInProgress.Dec()
	pm.scanFailures.WithLabelValues(kind).Inc()
}

// RecordIntelLookup 记录情报查询结果
func (pm *PrometheusMetrics) RecordIntelLookup(service, status string, duration time.Duration) {
	pm.intelLookupsTotal.WithLabelValues(service, status).Inc()
	pm.intelLookupDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordIntelCacheHit 记录缓存命中
func (pm *PrometheusMetrics) RecordIntelCacheHit() {
	pm.intelCacheHits.Inc()
}

// RecordClassifierInference 记录分类器推理结果
func (pm *PrometheusMetrics) RecordClassifierInference(status string) {
	pm.classifierInferences.WithLabelValues(status).Inc()
}

// UpdateWorkerPoolStats 更新 Worker Pool 统计
func (pm *PrometheusMetrics) UpdateWorkerPoolStats(size, active, queueSize int) {
	pm.workerPoolSize.Set(float64(size))
	pm.workerPoolActive.Set(float64(active))
	pm.workerPoolQueueSize.Set(float64(queueSize))
}
