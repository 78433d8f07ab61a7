package domain

// CertTrust 证书信任匹配结果。没有可比对的表项时必须是 unknown，不允许猜测。
type CertTrust string

const (
	CertTrusted   CertTrust = "trusted"
	CertUntrusted CertTrust = "untrusted"
	CertUnknown   CertTrust = "unknown"
)

// SuspiciousIndicators 可疑指标统计与样本
type SuspiciousIndicators struct {
	IPCount     int      `json:"ip_count"`
	URLCount    int      `json:"url_count"`
	KeywordHits int      `json:"keyword_hits"`
	IPs         []string `json:"ips,omitempty"`
	URLs        []string `json:"urls,omitempty"`
	Strings     []string `json:"strings,omitempty"`
}

// Total 指标总量（用于静态信号评分）
func (s *SuspiciousIndicators) Total() int {
	return s.IPCount + s.URLCount + s.KeywordHits
}

// StaticFindings 静态特征提取结果。
// 不变式: DangerousPermissions ⊆ Permissions; Entropy ∈ [0, 8]。
type StaticFindings struct {
	Permissions          []string             `json:"permissions"`
	DangerousPermissions []string             `json:"dangerous_permissions"`
	CertFingerprint      string               `json:"cert_fingerprint,omitempty"`
	CertTrustedMatch     CertTrust            `json:"cert_trusted_match"`
	Entropy              float64              `json:"entropy"`
	Suspicious           SuspiciousIndicators `json:"suspicious"`
	IconHash             string               `json:"icon_hash,omitempty"`
	IconSimilarity       float64              `json:"icon_similarity_score"`
}
