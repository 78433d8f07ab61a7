package repository

import (
	"errors"
	"time"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"gorm.io/gorm"
)

// ScanRepository 扫描记录存取
type ScanRepository struct {
	db *gorm.DB
}

// NewScanRepository 创建仓储
func NewScanRepository(db *gorm.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Create 新建扫描记录
func (r *ScanRepository) Create(record *domain.ScanRecord) error {
	return r.db.Create(record).Error
}

// Update 保存整条记录
func (r *ScanRepository) Update(record *domain.ScanRecord) error {
	return r.db.Save(record).Error
}

// GetByScanID 按扫描 ID 查询
func (r *ScanRepository) GetByScanID(scanID string) (*domain.ScanRecord, error) {
	var record domain.ScanRecord
	err := r.db.Where("scan_id = ?", scanID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// LatestCompletedByDigest 同一摘要最近一次完成的扫描。
// 重复上传的包直接命中历史结果，不再跑管线。
func (r *ScanRepository) LatestCompletedByDigest(sha256 string) (*domain.ScanRecord, error) {
	var record domain.ScanRecord
	err := r.db.Where("sha256 = ? AND status = ?", sha256, domain.ScanStatusCompleted).
		Order("id DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// List 分页列出扫描记录，decision 为空时不过滤
func (r *ScanRepository) List(page, pageSize int, decision string) ([]domain.ScanRecord, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	query := r.db.Model(&domain.ScanRecord{})
	if decision != "" {
		query = query.Where("decision = ?", decision)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []domain.ScanRecord
	err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error
	return records, total, err
}

// MarkFailed 标记失败并记录类型化原因
func (r *ScanRepository) MarkFailed(scanID string, kind, cause string) error {
	now := time.Now().UTC()
	return r.db.Model(&domain.ScanRecord{}).
		Where("scan_id = ?", scanID).
		Updates(map[string]interface{}{
			"status":      domain.ScanStatusFailed,
			"error_kind":  kind,
			"error_cause": cause,
			"analyzed_at": &now,
		}).Error
}

// CountByDecision 各结论的记录数（健康页统计）
func (r *ScanRepository) CountByDecision() (map[string]int64, error) {
	type row struct {
		Decision string
		Count    int64
	}
	var rows []row
	err := r.db.Model(&domain.ScanRecord{}).
		Select("decision, COUNT(*) as count").
		Where("status = ?", domain.ScanStatusCompleted).
		Group("decision").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Decision] = r.Count
	}
	return counts, nil
}
