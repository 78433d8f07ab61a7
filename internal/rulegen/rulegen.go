package rulegen

import (
	"fmt"
	"strings"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/sirupsen/logrus"
)

const (
	minTokenLength = 4
	maxTokens      = 12
	rulePrefix     = "apk_"
)

// Synthesizer 从静态指标合成 YARA 检测规则。
// 完全确定性：相同输入产出逐字节相同的规则文本（幂等）。
type Synthesizer struct {
	logger *logrus.Logger
}

// NewSynthesizer 创建合成器
func NewSynthesizer(logger *logrus.Logger) *Synthesizer {
	return &Synthesizer{logger: logger}
}

// Synthesize 合成规则。existing 非空时原样透传（上游已有规则不再生成）。
// 无任何指标时产出条件恒假的 "no indicators" 规则，
// 下游消费方总能拿到结构完整的产物而不是缺字段。
func (s *Synthesizer) Synthesize(packageName string, findings *domain.StaticFindings, existing *domain.DetectionRule) *domain.DetectionRule {
	if existing != nil && existing.Text != "" {
		return existing
	}

	name := ruleName(packageName)
	tokens := collectTokens(findings)

	rule := &domain.DetectionRule{
		Name:     name,
		Patterns: tokens,
	}
	if len(tokens) == 0 {
		rule.Condition = "false"
	} else {
		rule.Condition = "any of them"
	}
	rule.Text = renderRule(name, packageName, tokens, rule.Condition)

	s.logger.WithFields(logrus.Fields{
		"rule":     name,
		"patterns": len(tokens),
	}).Debug("Detection rule synthesized")

	return rule
}

// ruleName 包名归一化为 YARA 标识符
func ruleName(packageName string) string {
	if packageName == "" {
		return rulePrefix + "unknown"
	}
	var b strings.Builder
	b.WriteString(rulePrefix)
	for _, r := range packageName {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// collectTokens 按 URL、IP、关键词命中的顺序收集去重后的模式串，
// 过短的噪声串剔除，总量封顶控制产物体积。
func collectTokens(findings *domain.StaticFindings) []string {
	if findings == nil {
		return nil
	}

	seen := make(map[string]bool)
	var tokens []string
	add := func(values []string) {
		for _, v := range values {
			if len(tokens) >= maxTokens {
				return
			}
			if len(v) < minTokenLength || seen[v] {
				continue
			}
			seen[v] = true
			tokens = append(tokens, v)
		}
	}

	add(findings.Suspicious.URLs)
	add(findings.Suspicious.IPs)
	add(findings.Suspicious.Strings)
	return tokens
}

func renderRule(name, packageName string, tokens []string, condition string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "rule %s\n{\n", name)

	b.WriteString("    meta:\n")
	b.WriteString("        generated_by = \"apk-verdict-go\"\n")
	if packageName != "" {
		fmt.Fprintf(&b, "        package = \"%s\"\n", escapeString(packageName))
	}
	if len(tokens) == 0 {
		b.WriteString("        note = \"no indicators extracted, condition is unsatisfiable\"\n")
	}

	if len(tokens) > 0 {
		b.WriteString("    strings:\n")
		for i, t := range tokens {
			fmt.Fprintf(&b, "        $s%d = \"%s\"\n", i, escapeString(t))
		}
	}

	fmt.Fprintf(&b, "    condition:\n        %s\n}\n", condition)
	return b.String()
}

// escapeString YARA 字符串字面量转义
func escapeString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
