package staticanalysis

import (
	"strings"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/apk-analysis/apk-verdict-go/internal/indicator"
	"github.com/sirupsen/logrus"
)

// Policy 静态分析策略表。全部由配置注入，提取逻辑本身不含策略。
type Policy struct {
	DangerousPermissions []string
	TrustedCerts         []string // 可信签名证书 sha256 指纹
	TrustedIcons         []string // 可信应用图标 average-hash（十六进制）
	MinStringLength      int
	MaxLiterals          int // 每类保留的原始字面量上限
}

// DefaultPolicy 默认策略（无表项，全部判定降级为 unknown / 空）
func DefaultPolicy() Policy {
	return Policy{MinStringLength: 5, MaxLiterals: 200}
}

// Extractor 静态特征提取器。
// 对结构良好的 Package 永不失败：缺字段一律降级为显式 unknown / 空值。
type Extractor struct {
	logger     *logrus.Logger
	policy     Policy
	dangerous  map[string]bool
	trusted    map[string]bool
	indicators *indicator.Classifier
}

// NewExtractor 创建提取器
func NewExtractor(policy Policy, logger *logrus.Logger) *Extractor {
	if policy.MinStringLength <= 0 {
		policy.MinStringLength = 5
	}
	if policy.MaxLiterals <= 0 {
		policy.MaxLiterals = 200
	}

	dangerous := make(map[string]bool, len(policy.DangerousPermissions))
	for _, p := range policy.DangerousPermissions {
		dangerous[p] = true
	}
	trusted := make(map[string]bool, len(policy.TrustedCerts))
	for _, c := range policy.TrustedCerts {
		trusted[strings.ToLower(c)] = true
	}

	return &Extractor{
		logger:     logger,
		policy:     policy,
		dangerous:  dangerous,
		trusted:    trusted,
		indicators: indicator.NewClassifier(),
	}
}

// Extract 从 Package 提取静态特征
func (e *Extractor) Extract(pkg *domain.Package) *domain.StaticFindings {
	findings := &domain.StaticFindings{
		Permissions:          pkg.Permissions,
		DangerousPermissions: e.dangerousSubset(pkg.Permissions),
		CertTrustedMatch:     domain.CertUnknown,
		Entropy:              codeEntropy(pkg.CodeSections),
		Suspicious:           e.scanIndicators(pkg.CodeSections),
	}

	if len(pkg.Certificates) > 0 {
		findings.CertFingerprint = pkg.Certificates[0].SHA256
		// 没有可比对的表项时保持 unknown，不猜测
		if len(e.trusted) > 0 {
			if e.trusted[strings.ToLower(findings.CertFingerprint)] {
				findings.CertTrustedMatch = domain.CertTrusted
			} else {
				findings.CertTrustedMatch = domain.CertUntrusted
			}
		}
	}

	if len(pkg.IconData) > 0 {
		hash, err := averageHash(pkg.IconData)
		if err != nil {
			e.logger.WithError(err).Debug("Failed to hash launcher icon")
		} else {
			findings.IconHash = hash
			findings.IconSimilarity = bestIconSimilarity(hash, e.policy.TrustedIcons)
		}
	}

	e.logger.WithFields(logrus.Fields{
		"package":          pkg.PackageName,
		"dangerous_perms":  len(findings.DangerousPermissions),
		"entropy":          findings.Entropy,
		"suspicious_total": findings.Suspicious.Total(),
		"cert_trust":       findings.CertTrustedMatch,
	}).Debug("Static features extracted")

	return findings
}

// dangerousSubset 保持声明顺序的敏感权限子集
func (e *Extractor) dangerousSubset(permissions []string) []string {
	out := make([]string, 0)
	for _, p := range permissions {
		if e.dangerous[p] {
			out = append(out, p)
		}
	}
	return out
}

// scanIndicators 扫描代码段中的可疑字符串指标。
// 计数不封顶，原始字面量每类最多保留 MaxLiterals 条以约束输出体积。
func (e *Extractor) scanIndicators(sections []domain.CodeSection) domain.SuspiciousIndicators {
	var result domain.SuspiciousIndicators
	seen := make(map[string]bool)

	for _, section := range sections {
		for _, s := range indicator.ExtractStrings(section.Data, e.policy.MinStringLength) {
			if seen[s] {
				continue
			}
			seen[s] = true

			switch e.indicators.Classify(s) {
			case indicator.KindURL:
				result.URLCount++
				if len(result.URLs) < e.policy.MaxLiterals {
					result.URLs = append(result.URLs, s)
				}
			case indicator.KindIP:
				result.IPCount++
				if len(result.IPs) < e.policy.MaxLiterals {
					result.IPs = append(result.IPs, s)
				}
			case indicator.KindKeyword:
				result.KeywordHits++
				if len(result.Strings) < e.policy.MaxLiterals {
					result.Strings = append(result.Strings, s)
				}
			}
		}
	}
	return result
}
