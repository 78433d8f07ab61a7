package fusion

import (
	"testing"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/stretchr/testify/assert"
)

func defaultEngine() *Engine {
	return NewEngine(Weights{Static: 0.2, Classifier: 0.5, Intel: 0.3}, 30, 60)
}

func intelReport(reports ...*domain.ServiceReport) *domain.IntelligenceReport {
	r := &domain.IntelligenceReport{}
	for _, sr := range reports {
		r.Set(sr)
	}
	return r
}

func TestStaticScore(t *testing.T) {
	assert.Equal(t, 0.0, StaticScore(nil))

	// 可信证书、无敏感权限、无指标
	assert.Equal(t, 0.0, StaticScore(&domain.StaticFindings{
		CertTrustedMatch: domain.CertTrusted,
	}))

	// 敏感权限封顶于 40
	assert.Equal(t, 40.0, StaticScore(&domain.StaticFindings{
		DangerousPermissions: []string{"a", "b", "c", "d", "e", "f", "g"},
		CertTrustedMatch:     domain.CertTrusted,
	}))

	// 指标封顶于 30
	assert.Equal(t, 30.0, StaticScore(&domain.StaticFindings{
		CertTrustedMatch: domain.CertTrusted,
		Suspicious:       domain.SuspiciousIndicators{URLCount: 500},
	}))

	// 2 权限(20) + untrusted(20) + 5 指标(10) = 50
	assert.Equal(t, 50.0, StaticScore(&domain.StaticFindings{
		DangerousPermissions: []string{"a", "b"},
		CertTrustedMatch:     domain.CertUntrusted,
		Suspicious:           domain.SuspiciousIndicators{IPCount: 2, URLCount: 2, KeywordHits: 1},
	}))

	// 无证书信息计 unknown 档
	assert.Equal(t, 10.0, StaticScore(&domain.StaticFindings{
		CertTrustedMatch: domain.CertUnknown,
	}))
}

func TestFuseBenignScenario(t *testing.T) {
	e := defaultEngine()

	findings := &domain.StaticFindings{CertTrustedMatch: domain.CertTrusted}
	verdict := &domain.ClassifierVerdict{Probability: 0.05}
	intel := intelReport(
		&domain.ServiceReport{Service: "virustotal", Status: domain.IntelNotFound},
		&domain.ServiceReport{Service: "malwarebazaar", Status: domain.IntelNotFound},
	)

	v := e.Fuse(findings, verdict, intel)
	// 0.2*0 + 0.5*5 + 0.3*0 = 2.5
	assert.InDelta(t, 2.5, v.Score, 1e-9)
	assert.Equal(t, domain.DecisionBenign, v.Decision)
}

func TestFuseMaliciousScenario(t *testing.T) {
	e := defaultEngine()

	findings := &domain.StaticFindings{
		DangerousPermissions: []string{"a", "b"},
		CertTrustedMatch:     domain.CertUntrusted,
		Suspicious:           domain.SuspiciousIndicators{IPCount: 2, URLCount: 2, KeywordHits: 1},
	}
	verdict := &domain.ClassifierVerdict{Probability: 0.87}
	intel := intelReport(
		&domain.ServiceReport{Service: "virustotal", Status: domain.IntelFound, Detections: 31, Total: 70},
		&domain.ServiceReport{Service: "malwarebazaar", Status: domain.IntelFound, Detections: 60, Total: 100},
	)

	v := e.Fuse(findings, verdict, intel)
	// 静态 50，分类 87，情报 (44.2857+60)/2 ≈ 52.1429
	// 0.2*50 + 0.5*87 + 0.3*52.1429 ≈ 69.14
	assert.InDelta(t, 69.142857, v.Score, 1e-4)
	assert.Equal(t, domain.DecisionMalicious, v.Decision)
}

func TestFuseSuspiciousBand(t *testing.T) {
	e := defaultEngine()

	v := e.Fuse(&domain.StaticFindings{
		DangerousPermissions: []string{"a", "b", "c", "d"},
		CertTrustedMatch:     domain.CertUnknown,
	}, nil, nil)
	// 只有静态信号在场：50 分落在 [30, 60) 区间
	assert.InDelta(t, 50.0, v.Score, 1e-9)
	assert.Equal(t, domain.DecisionSuspicious, v.Decision)
}

func TestFuseClassifierAbsentRedistributes(t *testing.T) {
	e := defaultEngine()

	findings := &domain.StaticFindings{
		DangerousPermissions: []string{"a", "b", "c", "d"},
		CertTrustedMatch:     domain.CertUntrusted,
	}
	intel := intelReport(
		&domain.ServiceReport{Service: "virustotal", Status: domain.IntelFound, Detections: 60, Total: 60},
	)

	v := e.Fuse(findings, nil, intel)
	// 分类缺席：(0.2*60 + 0.3*100) / (0.2+0.3) = 84
	assert.InDelta(t, 84.0, v.Score, 1e-9)
	assert.Equal(t, domain.DecisionMalicious, v.Decision)
}

func TestFuseAllIntelUnavailable(t *testing.T) {
	e := defaultEngine()

	intel := intelReport(
		&domain.ServiceReport{Service: "virustotal", Status: domain.IntelUnavailable, Reason: "timeout"},
		&domain.ServiceReport{Service: "malwarebazaar", Status: domain.IntelUnavailable, Reason: "transport error"},
	)

	v := e.Fuse(&domain.StaticFindings{CertTrustedMatch: domain.CertTrusted}, &domain.ClassifierVerdict{Probability: 0.5}, intel)
	// 情报信号整体缺席：(0.2*0 + 0.5*50) / 0.7 ≈ 35.71，绝不是 NaN
	assert.InDelta(t, 35.714285, v.Score, 1e-4)
	assert.False(t, v.Score != v.Score, "score must not be NaN")
	assert.Equal(t, domain.DecisionSuspicious, v.Decision)
}

func TestFuseMixedIntelAvailability(t *testing.T) {
	e := defaultEngine()

	intel := intelReport(
		&domain.ServiceReport{Service: "virustotal", Status: domain.IntelUnavailable, Reason: "timeout"},
		&domain.ServiceReport{Service: "malwarebazaar", Status: domain.IntelFound, Detections: 1, Total: 1},
	)

	v := e.Fuse(&domain.StaticFindings{CertTrustedMatch: domain.CertTrusted}, nil, intel)
	// unavailable 的服务不参与：情报 = 100，(0.2*0 + 0.3*100)/0.5 = 60
	assert.InDelta(t, 60.0, v.Score, 1e-9)
	assert.Equal(t, domain.DecisionMalicious, v.Decision)
}

func TestFuseAllSignalsAbsent(t *testing.T) {
	e := NewEngine(Weights{}, 30, 60)

	v := e.Fuse(nil, nil, nil)
	assert.Equal(t, 0.0, v.Score)
	assert.Equal(t, domain.DecisionBenign, v.Decision)
}

func TestFuseMonotonicInProbability(t *testing.T) {
	e := defaultEngine()
	findings := &domain.StaticFindings{CertTrustedMatch: domain.CertUnknown}

	prev := -1.0
	for _, p := range []float64{0.0, 0.25, 0.5, 0.75, 1.0} {
		v := e.Fuse(findings, &domain.ClassifierVerdict{Probability: p}, nil)
		assert.Greater(t, v.Score, prev)
		prev = v.Score
	}
}

func TestFuseDeterministic(t *testing.T) {
	e := defaultEngine()
	findings := &domain.StaticFindings{
		DangerousPermissions: []string{"a"},
		CertTrustedMatch:     domain.CertUnknown,
		Suspicious:           domain.SuspiciousIndicators{KeywordHits: 3},
	}
	verdict := &domain.ClassifierVerdict{Probability: 0.42}

	v1 := e.Fuse(findings, verdict, nil)
	v2 := e.Fuse(findings, verdict, nil)
	assert.Equal(t, v1, v2)
}
