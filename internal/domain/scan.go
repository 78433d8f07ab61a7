package domain

import "time"

// ScanStatus 扫描任务状态
type ScanStatus string

const (
	ScanStatusQueued    ScanStatus = "queued"
	ScanStatusAnalyzing ScanStatus = "analyzing"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// ScanRecord 扫描历史记录表。以 sha256 为键，
// 同一摘要重复上传时直接命中历史结果。
type ScanRecord struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ScanID string `gorm:"type:varchar(36);uniqueIndex:uk_scan_id;not null" json:"scan_id"`
	SHA256 string `gorm:"type:varchar(64);index:idx_sha256;not null" json:"sha256"`

	// 状态
	Status ScanStatus `gorm:"type:varchar(30);default:'queued'" json:"status"`
	Source string     `gorm:"type:varchar(20)" json:"source"` // upload / watcher / queue

	// 基础信息（冗余存储，方便查询）
	PackageName string `gorm:"type:varchar(255);index:idx_package_name" json:"package_name,omitempty"`
	AppLabel    string `gorm:"type:varchar(255)" json:"app_label,omitempty"`
	VersionName string `gorm:"type:varchar(50)" json:"version_name,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`

	// 结论（冗余存储）
	Decision   Decision `gorm:"type:varchar(20)" json:"decision,omitempty"`
	FinalScore float64  `json:"final_score,omitempty"`

	// 完整结果 JSON
	ReportJSON string `gorm:"type:mediumtext" json:"report_json,omitempty"`
	YaraRule   string `gorm:"type:text" json:"yara_rule,omitempty"`

	// 失败信息
	ErrorKind  string `gorm:"type:varchar(40)" json:"error_kind,omitempty"`
	ErrorCause string `gorm:"type:varchar(500)" json:"error_cause,omitempty"`

	// 性能指标
	AnalysisDurationMs int `gorm:"type:int" json:"analysis_duration_ms,omitempty"`

	// 时间戳
	AnalyzedAt *time.Time `json:"analyzed_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
}

func (ScanRecord) TableName() string {
	return "scan_records"
}
