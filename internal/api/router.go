package api

import (
	"time"

	"github.com/apk-analysis/apk-verdict-go/internal/api/handlers"
	"github.com/apk-analysis/apk-verdict-go/internal/config"
	"github.com/apk-analysis/apk-verdict-go/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRouter 组装 HTTP 路由
func SetupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	scanHandler *handlers.ScanHandler,
	healthHandler *handlers.HealthHandler,
	verdictHub *handlers.VerdictHub,
	promMetrics *middleware.PrometheusMetrics,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())
	if promMetrics != nil {
		r.Use(promMetrics.HTTPMiddleware())
		r.GET("/metrics", promMetrics.Handler())
	}

	// 结论实时推送
	r.GET("/ws/verdicts", verdictHub.HandleWebSocket)

	v1 := r.Group("/api")
	{
		v1.GET("/health", healthHandler.Health)

		v1.POST("/analyze", scanHandler.Analyze)

		v1.GET("/scans", scanHandler.ListScans)
		v1.GET("/scans/:sha256", scanHandler.GetScan)
		v1.GET("/scans/:sha256/rule", scanHandler.GetRule)
	}

	return r
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		logger.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"latency": time.Since(startTime).Milliseconds(),
		}).Info("HTTP Request")
	}
}

// CORSMiddleware CORS 中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
