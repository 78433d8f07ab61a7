package classifier

import (
	"math"
	"sort"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/sirupsen/logrus"
)

// maxExplanations 解释条目上限
const maxExplanations = 8

// Adapter 分类器适配层：把静态特征映射成模型输入向量，
// 执行推理并给出按贡献排序的解释。模型句柄只读共享。
type Adapter struct {
	model  *Model
	logger *logrus.Logger
}

// NewAdapter 创建适配器。model 为 nil 时每次推理都返回 model_unavailable，
// 是否允许这种降级运行由管线的 classifier_required 策略决定。
func NewAdapter(model *Model, logger *logrus.Logger) *Adapter {
	return &Adapter{model: model, logger: logger}
}

// ModelVersion 当前模型版本，无模型时为空串
func (a *Adapter) ModelVersion() string {
	if a.model == nil {
		return ""
	}
	return a.model.ModelVersion
}

// Classify 对静态特征做推理
func (a *Adapter) Classify(findings *domain.StaticFindings) (*domain.ClassifierVerdict, error) {
	if a.model == nil {
		return nil, domain.NewAnalysisError(domain.ErrModelUnavailable, "no classifier model loaded")
	}

	// 向量构造是确定性的：按模型声明的特征顺序逐个取值
	n := len(a.model.Features)
	contributions := make([]domain.FeatureContribution, 0, n)
	logit := a.model.Bias

	for i, name := range a.model.Features {
		extract := featureExtractors[name] // 加载期已校验存在
		raw := extract(findings)
		scaled := (raw - a.model.ScalerMean[i]) / a.model.ScalerScale[i]
		contribution := a.model.Weights[i] * scaled
		logit += contribution
		contributions = append(contributions, domain.FeatureContribution{
			Feature: name,
			Weight:  contribution,
		})
	}

	// 按贡献绝对值降序；稳定排序保证同值时按声明顺序
	sort.SliceStable(contributions, func(i, j int) bool {
		return math.Abs(contributions[i].Weight) > math.Abs(contributions[j].Weight)
	})
	if len(contributions) > maxExplanations {
		contributions = contributions[:maxExplanations]
	}

	probability := sigmoid(logit)
	a.logger.WithFields(logrus.Fields{
		"probability":   probability,
		"model_version": a.model.ModelVersion,
	}).Debug("Classifier inference completed")

	return &domain.ClassifierVerdict{
		Probability:  probability,
		ModelVersion: a.model.ModelVersion,
		Explanations: contributions,
	}, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
