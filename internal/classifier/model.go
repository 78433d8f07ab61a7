package classifier

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
)

// SupportedSchemaVersion 当前支持的特征向量 schema 版本。
// 模型文件声明的版本不一致时在加载期报 feature_mismatch，而不是在请求期。
const SupportedSchemaVersion = "fv1"

// Model 训练侧导出的逻辑回归模型包：
// 特征名表 + 标准化参数 + 权重。加载后只读，可跨并发请求共享。
type Model struct {
	SchemaVersion string    `json:"schema_version"`
	ModelVersion  string    `json:"model_version"`
	Features      []string  `json:"features"`
	ScalerMean    []float64 `json:"scaler_mean"`
	ScalerScale   []float64 `json:"scaler_scale"`
	Weights       []float64 `json:"weights"`
	Bias          float64   `json:"bias"`
}

// LoadModel 从 JSON 文件加载模型并校验结构一致性
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapAnalysisError(domain.ErrModelUnavailable,
			fmt.Sprintf("cannot read model file %s", path), err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, domain.WrapAnalysisError(domain.ErrModelUnavailable, "model file is not valid JSON", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Model) validate() error {
	if m.SchemaVersion != SupportedSchemaVersion {
		return domain.NewAnalysisError(domain.ErrFeatureMismatch,
			fmt.Sprintf("model schema version %q, expected %q", m.SchemaVersion, SupportedSchemaVersion))
	}
	if len(m.Features) == 0 {
		return domain.NewAnalysisError(domain.ErrFeatureMismatch, "model declares no features")
	}
	if len(m.ScalerMean) != len(m.Features) || len(m.ScalerScale) != len(m.Features) ||
		len(m.Weights) != len(m.Features) {
		return domain.NewAnalysisError(domain.ErrFeatureMismatch,
			fmt.Sprintf("model arrays disagree on length: features=%d mean=%d scale=%d weights=%d",
				len(m.Features), len(m.ScalerMean), len(m.ScalerScale), len(m.Weights)))
	}
	for i, s := range m.ScalerScale {
		if s == 0 {
			return domain.NewAnalysisError(domain.ErrFeatureMismatch,
				fmt.Sprintf("scaler scale for feature %q is zero", m.Features[i]))
		}
	}
	for _, name := range m.Features {
		if _, ok := featureExtractors[name]; !ok {
			return domain.NewAnalysisError(domain.ErrFeatureMismatch,
				fmt.Sprintf("model references unknown feature %q", name))
		}
	}
	return nil
}
