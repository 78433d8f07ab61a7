package classifier

import "github.com/apk-analysis/apk-verdict-go/internal/domain"

// featureExtractors fv1 schema 下可用的特征及其确定性取值。
// 同一份 StaticFindings 必定产出同一向量；新增特征只在新 schema 版本里出现。
var featureExtractors = map[string]func(*domain.StaticFindings) float64{
	"permission_count": func(f *domain.StaticFindings) float64 {
		return float64(len(f.Permissions))
	},
	"dangerous_permission_count": func(f *domain.StaticFindings) float64 {
		return float64(len(f.DangerousPermissions))
	},
	"dangerous_permission_ratio": func(f *domain.StaticFindings) float64 {
		if len(f.Permissions) == 0 {
			return 0
		}
		return float64(len(f.DangerousPermissions)) / float64(len(f.Permissions))
	},
	"code_entropy": func(f *domain.StaticFindings) float64 {
		return f.Entropy
	},
	"suspicious_ip_count": func(f *domain.StaticFindings) float64 {
		return float64(f.Suspicious.IPCount)
	},
	"suspicious_url_count": func(f *domain.StaticFindings) float64 {
		return float64(f.Suspicious.URLCount)
	},
	"suspicious_keyword_count": func(f *domain.StaticFindings) float64 {
		return float64(f.Suspicious.KeywordHits)
	},
	// trusted=0 / unknown=0.5 / untrusted=1
	"cert_distrust": func(f *domain.StaticFindings) float64 {
		switch f.CertTrustedMatch {
		case domain.CertTrusted:
			return 0
		case domain.CertUntrusted:
			return 1
		default:
			return 0.5
		}
	},
	"icon_similarity": func(f *domain.StaticFindings) float64 {
		return f.IconSimilarity
	},
}
