package domain

// FeatureContribution 单个特征对分类结果的贡献
type FeatureContribution struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// ClassifierVerdict 分类器输出。
// 相同特征向量 + 相同模型版本必定得到相同概率（确定性）。
type ClassifierVerdict struct {
	Probability  float64               `json:"probability"` // [0, 1]
	ModelVersion string                `json:"model_version"`
	Explanations []FeatureContribution `json:"explanations"` // 按贡献绝对值降序，上限 8 条
}

// IntelStatus 单个情报服务的查询状态
type IntelStatus string

const (
	IntelFound       IntelStatus = "found"
	IntelNotFound    IntelStatus = "not_found"
	IntelUnavailable IntelStatus = "unavailable"
)

// ServiceReport 单个情报服务的查询结果。
// Unavailable 只影响该服务自身，绝不中止整条管线。
type ServiceReport struct {
	Service    string      `json:"service"`
	Status     IntelStatus `json:"status"`
	Detections int         `json:"detections,omitempty"`
	Total      int         `json:"total,omitempty"`
	Reason     string      `json:"reason,omitempty"` // Unavailable 时的可读原因
}

// IntelligenceReport 所有已配置服务的聚合结果
type IntelligenceReport struct {
	VirusTotal    *ServiceReport `json:"virustotal,omitempty"`
	MalwareBazaar *ServiceReport `json:"malwarebazaar,omitempty"`
}

// Set 按服务名归位单个服务报告
func (r *IntelligenceReport) Set(sr *ServiceReport) {
	if sr == nil {
		return
	}
	switch sr.Service {
	case "virustotal":
		r.VirusTotal = sr
	case "malwarebazaar":
		r.MalwareBazaar = sr
	}
}

// Services 已出报告的服务列表（顺序固定）
func (r *IntelligenceReport) Services() []*ServiceReport {
	var out []*ServiceReport
	if r.VirusTotal != nil {
		out = append(out, r.VirusTotal)
	}
	if r.MalwareBazaar != nil {
		out = append(out, r.MalwareBazaar)
	}
	return out
}

// Decision 离散风险判定，按序排列
type Decision string

const (
	DecisionBenign     Decision = "BENIGN"
	DecisionSuspicious Decision = "SUSPICIOUS"
	DecisionMalicious  Decision = "MALICIOUS"
)

// RiskVerdict 最终风险结论。由输入重新计算派生，从不原地修改。
type RiskVerdict struct {
	Score    float64  `json:"final_score"` // [0, 100]
	Decision Decision `json:"decision"`
}

// DetectionRule 从静态指标合成的检测规则产物
type DetectionRule struct {
	Name      string   `json:"name"`
	Patterns  []string `json:"patterns"`
	Condition string   `json:"condition"`
	Text      string   `json:"text"` // 完整 YARA 规则文本
}
