package handlers

import (
	"net/http"

	"github.com/apk-analysis/apk-verdict-go/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HealthHandler 健康检查
type HealthHandler struct {
	db           *gorm.DB
	service      *service.ScanService
	modelVersion string
	logger       *logrus.Logger
}

// NewHealthHandler 创建处理器
func NewHealthHandler(db *gorm.DB, svc *service.ScanService, modelVersion string, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{db: db, service: svc, modelVersion: modelVersion, logger: logger}
}

// Health GET /api/health
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"

	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.Ping() != nil {
		dbStatus = "unreachable"
		status = "degraded"
	}

	modelStatus := "loaded"
	if h.modelVersion == "" {
		modelStatus = "unavailable"
		status = "degraded"
	}

	counts, err := h.service.DecisionCounts()
	if err != nil {
		h.logger.WithError(err).Warn("Failed to read decision counts")
		counts = map[string]int64{}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        status,
		"database":      dbStatus,
		"model":         modelStatus,
		"model_version": h.modelVersion,
		"decisions":     counts,
	})
}
