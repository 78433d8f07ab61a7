package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/apk-analysis/apk-verdict-go/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ScanHandler 扫描相关接口
type ScanHandler struct {
	service     *service.ScanService
	maxUploadMB int
	logger      *logrus.Logger
}

// NewScanHandler 创建处理器
func NewScanHandler(svc *service.ScanService, maxUploadMB int, logger *logrus.Logger) *ScanHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &ScanHandler{service: svc, maxUploadMB: maxUploadMB, logger: logger}
}

// Analyze POST /api/analyze
// multipart 上传单个 APK，同步跑完整管线并返回结果
func (h *ScanHandler) Analyze(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing multipart field 'file'"})
		return
	}

	maxBytes := int64(h.maxUploadMB) << 20
	if fileHeader.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "upload exceeds size limit",
			"limit": h.maxUploadMB,
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open upload"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
		return
	}
	if int64(len(data)) > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "upload exceeds size limit",
			"limit": h.maxUploadMB,
		})
		return
	}

	record, result, err := h.service.AnalyzeBytes(c.Request.Context(), data, "upload")
	if err != nil {
		h.respondAnalysisError(c, err)
		return
	}

	c.Header("X-Scan-ID", record.ScanID)
	c.JSON(http.StatusOK, result)
}

// respondAnalysisError 错误类型映射到 HTTP 状态码。
// 对外只给类型和可读原因。
func (h *ScanHandler) respondAnalysisError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	cause := err.Error()
	if ae, ok := err.(*domain.AnalysisError); ok {
		cause = ae.Cause
	}

	status := http.StatusInternalServerError
	switch kind {
	case domain.ErrMalformedPackage, domain.ErrMissingManifest, domain.ErrUnsignedPackage:
		status = http.StatusUnprocessableEntity
	case domain.ErrResourceLimitExceeded:
		status = http.StatusRequestEntityTooLarge
	case domain.ErrModelUnavailable, domain.ErrFeatureMismatch:
		status = http.StatusServiceUnavailable
	}

	h.logger.WithFields(logrus.Fields{
		"kind":  kind,
		"cause": cause,
	}).Warn("Analysis request failed")

	c.JSON(status, gin.H{"error": string(kind), "cause": cause})
}

// ListScans GET /api/scans?page=&page_size=&decision=
func (h *ScanHandler) ListScans(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	decision := c.Query("decision")

	records, total, err := h.service.List(page, pageSize, decision)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list scans")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list scans"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scans":     records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetScan GET /api/scans/:sha256
func (h *ScanHandler) GetScan(c *gin.Context) {
	record, err := h.service.GetBySHA256(c.Param("sha256"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch scan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch scan"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetRule GET /api/scans/:sha256/rule
// 以 text/plain 下载合成的 YARA 规则
func (h *ScanHandler) GetRule(c *gin.Context) {
	record, err := h.service.GetBySHA256(c.Param("sha256"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch scan"})
		return
	}
	if record == nil || record.YaraRule == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no rule for this digest"})
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+record.SHA256+".yar")
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(record.YaraRule))
}
