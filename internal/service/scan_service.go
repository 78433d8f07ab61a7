package service

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/apk-analysis/apk-verdict-go/internal/middleware"
	"github.com/apk-analysis/apk-verdict-go/internal/pipeline"
	"github.com/apk-analysis/apk-verdict-go/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Broadcaster 结论推送接口（websocket hub 实现）
type Broadcaster interface {
	BroadcastVerdict(record *domain.ScanRecord)
}

// ScanService 扫描服务：管线执行 + 历史落库 + 结论广播。
// 同一摘要的重复提交直接命中历史结果，不再跑管线。
type ScanService struct {
	analyzer    *pipeline.Analyzer
	repo        *repository.ScanRepository
	metrics     *middleware.PrometheusMetrics
	broadcaster Broadcaster
	logger      *logrus.Logger
}

// NewScanService 创建服务。metrics 和 broadcaster 允许为 nil。
func NewScanService(
	analyzer *pipeline.Analyzer,
	repo *repository.ScanRepository,
	metrics *middleware.PrometheusMetrics,
	broadcaster Broadcaster,
	logger *logrus.Logger,
) *ScanService {
	return &ScanService{
		analyzer:    analyzer,
		repo:        repo,
		metrics:     metrics,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// AnalyzeBytes 同步分析原始包字节。
// 返回落库后的记录和完整结果；解包失败等致命错误向上返回。
func (s *ScanService) AnalyzeBytes(ctx context.Context, data []byte, source string) (*domain.ScanRecord, *domain.AnalysisResult, error) {
	digest := fmt.Sprintf("%x", sha256.Sum256(data))

	// 摘要命中历史完成记录时直接返回缓存结果
	if cached, err := s.repo.LatestCompletedByDigest(digest); err == nil && cached != nil {
		s.logger.WithFields(logrus.Fields{
			"sha256":  digest,
			"scan_id": cached.ScanID,
		}).Info("Digest already analyzed, serving stored result")

		var result domain.AnalysisResult
		if err := json.Unmarshal([]byte(cached.ReportJSON), &result); err == nil {
			return cached, &result, nil
		}
		// 存量 JSON 损坏时重跑管线
		s.logger.WithField("scan_id", cached.ScanID).Warn("Stored report is unreadable, re-analyzing")
	}

	record := &domain.ScanRecord{
		ScanID:    uuid.New().String(),
		SHA256:    digest,
		Status:    domain.ScanStatusAnalyzing,
		Source:    source,
		FileSize:  int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(record); err != nil {
		return nil, nil, fmt.Errorf("failed to create scan record: %w", err)
	}

	result, err := s.runPipeline(ctx, record, data)
	if err != nil {
		return record, nil, err
	}
	return record, result, nil
}

// AnalyzeFile 分析落盘文件（watcher / 队列路径）。
// scanID 非空时沿用上游分配的 ID。
func (s *ScanService) AnalyzeFile(ctx context.Context, scanID, filePath, source string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	digest := fmt.Sprintf("%x", sha256.Sum256(data))
	if cached, cerr := s.repo.LatestCompletedByDigest(digest); cerr == nil && cached != nil {
		s.logger.WithFields(logrus.Fields{
			"file":   filepath.Base(filePath),
			"sha256": digest,
		}).Info("Digest already analyzed, skipping")
		return nil
	}

	if scanID == "" {
		scanID = uuid.New().String()
	}
	record := &domain.ScanRecord{
		ScanID:    scanID,
		SHA256:    digest,
		Status:    domain.ScanStatusAnalyzing,
		Source:    source,
		FileSize:  int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(record); err != nil {
		return fmt.Errorf("failed to create scan record: %w", err)
	}

	_, err = s.runPipeline(ctx, record, data)
	return err
}

// runPipeline 执行管线并把结果写回记录
func (s *ScanService) runPipeline(ctx context.Context, record *domain.ScanRecord, data []byte) (*domain.AnalysisResult, error) {
	started := time.Now()
	if s.metrics != nil {
		s.metrics.RecordScanStarted()
	}

	result, err := s.analyzer.Analyze(ctx, data)
	if err != nil {
		kind := domain.KindOf(err)
		if s.metrics != nil {
			s.metrics.RecordScanFailed(string(kind))
		}
		cause := err.Error()
		if ae, ok := err.(*domain.AnalysisError); ok {
			cause = ae.Cause
		}
		if dberr := s.repo.MarkFailed(record.ScanID, string(kind), cause); dberr != nil {
			s.logger.WithError(dberr).Error("Failed to persist scan failure")
		}
		record.Status = domain.ScanStatusFailed
		record.ErrorKind = string(kind)
		record.ErrorCause = cause
		return nil, err
	}

	reportJSON, jerr := json.Marshal(result)
	if jerr != nil {
		return nil, fmt.Errorf("failed to serialize report: %w", jerr)
	}

	now := time.Now().UTC()
	record.Status = domain.ScanStatusCompleted
	record.PackageName = result.Meta.Package
	record.AppLabel = result.Meta.AppLabel
	record.VersionName = result.Meta.VersionName
	record.Decision = result.Model.Decision
	record.FinalScore = result.Model.FinalScore
	record.ReportJSON = string(reportJSON)
	record.YaraRule = result.Yara
	record.AnalysisDurationMs = int(time.Since(started).Milliseconds())
	record.AnalyzedAt = &now

	if err := s.repo.Update(record); err != nil {
		s.logger.WithError(err).Error("Failed to persist scan result")
	}

	if s.metrics != nil {
		s.metrics.RecordScanCompleted(string(record.Decision), record.Source, time.Since(started))
		if result.ModelError == "" {
			s.metrics.RecordClassifierInference("success")
		} else {
			s.metrics.RecordClassifierInference(result.ModelError)
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastVerdict(record)
	}

	return result, nil
}

// GetByScanID 按扫描 ID 查记录
func (s *ScanService) GetByScanID(scanID string) (*domain.ScanRecord, error) {
	return s.repo.GetByScanID(scanID)
}

// GetBySHA256 按摘要查最近完成的记录
func (s *ScanService) GetBySHA256(sha256sum string) (*domain.ScanRecord, error) {
	return s.repo.LatestCompletedByDigest(sha256sum)
}

// List 分页列出历史
func (s *ScanService) List(page, pageSize int, decision string) ([]domain.ScanRecord, int64, error) {
	return s.repo.List(page, pageSize, decision)
}

// DecisionCounts 各结论计数
func (s *ScanService) DecisionCounts() (map[string]int64, error) {
	return s.repo.CountByDecision()
}
