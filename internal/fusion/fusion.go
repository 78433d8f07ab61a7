package fusion

import (
	"math"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
)

// 静态信号的内部计分参数。各分量先封顶再求和，
// 保证单项指标爆量不会垄断静态信号。
const (
	dangerousPermPoints = 10.0
	dangerousPermCap    = 40.0
	certUntrustedPoints = 20.0
	certUnknownPoints   = 10.0
	indicatorPoints     = 2.0
	indicatorCap        = 30.0
)

// Weights 各信号的融合权重
type Weights struct {
	Static     float64
	Classifier float64
	Intel      float64
}

// Engine 决策融合引擎。纯函数：相同输入必得相同 RiskVerdict，
// 不持有任何请求间状态。
type Engine struct {
	weights            Weights
	benignThreshold    float64 // T1
	maliciousThreshold float64 // T2, 构造前由配置校验保证 T1 < T2
}

// NewEngine 创建引擎
func NewEngine(weights Weights, benignThreshold, maliciousThreshold float64) *Engine {
	return &Engine{
		weights:            weights,
		benignThreshold:    benignThreshold,
		maliciousThreshold: maliciousThreshold,
	}
}

// Fuse 融合三路信号。verdict 为 nil 表示分类信号缺席，
// intel 中 unavailable 的服务不计入情报信号；缺席信号的权重
// 按比例摊给在场信号，而不是默默按 0 分计入。
func (e *Engine) Fuse(findings *domain.StaticFindings, verdict *domain.ClassifierVerdict, intel *domain.IntelligenceReport) domain.RiskVerdict {
	type signal struct {
		weight float64
		value  float64
	}
	signals := []signal{
		{weight: e.weights.Static, value: StaticScore(findings)},
	}

	if verdict != nil {
		signals = append(signals, signal{
			weight: e.weights.Classifier,
			value:  clamp(verdict.Probability*100, 0, 100),
		})
	}
	if value, ok := intelScore(intel); ok {
		signals = append(signals, signal{weight: e.weights.Intel, value: value})
	}

	// 权重按比例重分配等价于对在场信号求加权平均
	var weightSum, weighted float64
	for _, s := range signals {
		weightSum += s.weight
		weighted += s.weight * s.value
	}

	score := 0.0
	if weightSum > 0 {
		score = weighted / weightSum
	}
	score = clamp(score, 0, 100)
	if math.IsNaN(score) {
		score = 0
	}

	return domain.RiskVerdict{Score: score, Decision: e.decide(score)}
}

func (e *Engine) decide(score float64) domain.Decision {
	switch {
	case score < e.benignThreshold:
		return domain.DecisionBenign
	case score < e.maliciousThreshold:
		return domain.DecisionSuspicious
	default:
		return domain.DecisionMalicious
	}
}

// StaticScore 静态特征折算为 [0,100] 信号：
// 敏感权限数、证书信任、可疑指标量各自封顶后求和。
func StaticScore(findings *domain.StaticFindings) float64 {
	if findings == nil {
		return 0
	}

	score := math.Min(float64(len(findings.DangerousPermissions))*dangerousPermPoints, dangerousPermCap)

	switch findings.CertTrustedMatch {
	case domain.CertUntrusted:
		score += certUntrustedPoints
	case domain.CertUnknown:
		score += certUnknownPoints
	}

	score += math.Min(float64(findings.Suspicious.Total())*indicatorPoints, indicatorCap)

	return clamp(score, 0, 100)
}

// intelScore 情报信号：在场服务检出比的平均值。
// found → detections/total，not_found → 0，unavailable → 不参与。
// 全部 unavailable 时信号整体缺席（返回 ok=false）。
func intelScore(intel *domain.IntelligenceReport) (float64, bool) {
	if intel == nil {
		return 0, false
	}

	var sum float64
	var count int
	for _, sr := range intel.Services() {
		switch sr.Status {
		case domain.IntelFound:
			if sr.Total > 0 {
				sum += clamp(float64(sr.Detections)/float64(sr.Total)*100, 0, 100)
			}
			count++
		case domain.IntelNotFound:
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
