package domain

// Meta 包标识元信息
type Meta struct {
	Package     string `json:"package"`
	AppLabel    string `json:"app_label,omitempty"`
	VersionName string `json:"version_name,omitempty"`
	VersionCode string `json:"version_code,omitempty"`
	SHA256      string `json:"sha256"`
	FileSize    int64  `json:"file_size"`
}

// ModelSection 响应中的分类器与最终结论部分。
// 分类失败且策略允许降级时 probability/explanations 缺席，
// 结论字段仍由余下信号融合得出。
type ModelSection struct {
	ProbabilityFake *float64              `json:"probability_fake,omitempty"` // 百分比 [0, 100]
	Explanations    []FeatureContribution `json:"explanations,omitempty"`
	Decision        Decision              `json:"decision"`
	FinalScore      float64               `json:"final_score"`
}

// AnalysisResult 对外稳定的分析结果契约。
// 任何子对象都可能缺席：Unavailable 的服务以 null 呈现，而不是伪造零值。
type AnalysisResult struct {
	Meta         Meta               `json:"meta"`
	Analysis     StaticFindings     `json:"analysis"`
	Intelligence IntelligenceReport `json:"intelligence"`
	Model        *ModelSection      `json:"model,omitempty"`
	ModelError   string             `json:"model_error,omitempty"` // 降级时的类型化原因
	Yara         string             `json:"yara"`
}
