package rulegen

import (
	"io"
	"strings"
	"testing"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSynthesizer() *Synthesizer {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewSynthesizer(l)
}

func TestSynthesizeFromIndicators(t *testing.T) {
	s := testSynthesizer()

	findings := &domain.StaticFindings{
		Suspicious: domain.SuspiciousIndicators{
			URLs:    []string{"https://evil.example.com/gate"},
			IPs:     []string{"203.0.113.7"},
			Strings: []string{"password", "otp"}, // "otp" 过短，剔除
		},
	}

	rule := s.Synthesize("com.evil.app", findings, nil)
	require.NotNil(t, rule)

	assert.Equal(t, "apk_com_evil_app", rule.Name)
	assert.Equal(t, []string{"https://evil.example.com/gate", "203.0.113.7", "password"}, rule.Patterns)
	assert.Equal(t, "any of them", rule.Condition)

	assert.Contains(t, rule.Text, "rule apk_com_evil_app")
	assert.Contains(t, rule.Text, `$s0 = "https://evil.example.com/gate"`)
	assert.Contains(t, rule.Text, `package = "com.evil.app"`)
	assert.Contains(t, rule.Text, "any of them")
}

func TestSynthesizeIdempotent(t *testing.T) {
	s := testSynthesizer()
	findings := &domain.StaticFindings{
		Suspicious: domain.SuspiciousIndicators{
			URLs: []string{"https://a.example.com", "https://b.example.com"},
		},
	}

	r1 := s.Synthesize("com.example", findings, nil)
	r2 := s.Synthesize("com.example", findings, nil)
	// 逐字节相同
	assert.Equal(t, r1.Text, r2.Text)
	assert.Equal(t, r1, r2)
}

func TestSynthesizeNoIndicators(t *testing.T) {
	s := testSynthesizer()

	rule := s.Synthesize("com.clean.app", &domain.StaticFindings{}, nil)
	require.NotNil(t, rule)

	// 无指标：条件恒假，产物结构仍完整
	assert.Empty(t, rule.Patterns)
	assert.Equal(t, "false", rule.Condition)
	assert.Contains(t, rule.Text, "no indicators extracted")
	assert.NotContains(t, rule.Text, "strings:")

	rule = s.Synthesize("com.clean.app", nil, nil)
	assert.Equal(t, "false", rule.Condition)
}

func TestSynthesizeExistingPassThrough(t *testing.T) {
	s := testSynthesizer()
	existing := &domain.DetectionRule{Name: "handwritten", Text: "rule handwritten { condition: true }"}

	rule := s.Synthesize("com.any", &domain.StaticFindings{}, existing)
	assert.Same(t, existing, rule)
}

func TestSynthesizeTokenCapAndDedup(t *testing.T) {
	s := testSynthesizer()

	urls := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		urls = append(urls, strings.Repeat("x", 4)+string(rune('a'+i)))
	}
	findings := &domain.StaticFindings{
		Suspicious: domain.SuspiciousIndicators{
			URLs: append(urls, urls[0]), // 重复项不重复计
		},
	}

	rule := s.Synthesize("com.big", findings, nil)
	assert.Len(t, rule.Patterns, 12)
}

func TestRuleNameNormalization(t *testing.T) {
	s := testSynthesizer()

	rule := s.Synthesize("com.evil-app.v2", nil, nil)
	assert.Equal(t, "apk_com_evil_app_v2", rule.Name)

	rule = s.Synthesize("", nil, nil)
	assert.Equal(t, "apk_unknown", rule.Name)
}

func TestSynthesizeEscapesQuotes(t *testing.T) {
	s := testSynthesizer()

	findings := &domain.StaticFindings{
		Suspicious: domain.SuspiciousIndicators{
			Strings: []string{`say "hello" \ bye`},
		},
	}
	rule := s.Synthesize("com.q", findings, nil)
	assert.Contains(t, rule.Text, `$s0 = "say \"hello\" \\ bye"`)
}
