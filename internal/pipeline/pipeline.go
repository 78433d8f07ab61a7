package pipeline

import (
	"context"
	"time"

	"github.com/apk-analysis/apk-verdict-go/internal/classifier"
	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/apk-analysis/apk-verdict-go/internal/fusion"
	"github.com/apk-analysis/apk-verdict-go/internal/intel"
	"github.com/apk-analysis/apk-verdict-go/internal/rulegen"
	"github.com/apk-analysis/apk-verdict-go/internal/staticanalysis"
	"github.com/apk-analysis/apk-verdict-go/internal/unpacker"
	"github.com/sirupsen/logrus"
)

// Options 管线策略
type Options struct {
	// RequestTimeout 整体截止时间。到期后仍未返回的情报查询
	// 折算为 unavailable(timeout)，管线带着在场信号继续融合。
	RequestTimeout time.Duration
	// ClassifierRequired 为 true 时分类失败终止整个请求，
	// 否则降级为缺席的 model 子对象。
	ClassifierRequired bool
}

// Analyzer 管线编排器。各阶段产物不可变，阶段间单向传递；
// 分类与情报查询在静态提取后并发执行。
type Analyzer struct {
	unpacker  *unpacker.Unpacker
	extractor *staticanalysis.Extractor
	adapter   *classifier.Adapter
	intel     *intel.Aggregator
	fusion    *fusion.Engine
	rulegen   *rulegen.Synthesizer
	options   Options
	logger    *logrus.Logger
}

// NewAnalyzer 组装管线
func NewAnalyzer(
	up *unpacker.Unpacker,
	extractor *staticanalysis.Extractor,
	adapter *classifier.Adapter,
	aggregator *intel.Aggregator,
	engine *fusion.Engine,
	synthesizer *rulegen.Synthesizer,
	options Options,
	logger *logrus.Logger,
) *Analyzer {
	if options.RequestTimeout <= 0 {
		options.RequestTimeout = 60 * time.Second
	}
	return &Analyzer{
		unpacker:  up,
		extractor: extractor,
		adapter:   adapter,
		intel:     aggregator,
		fusion:    engine,
		rulegen:   synthesizer,
		options:   options,
		logger:    logger,
	}
}

// Analyze 对原始包字节执行完整分析。
// 只有解包失败（以及策略要求下的分类失败）会返回错误；
// 情报服务故障一律降级进结果。
func (a *Analyzer) Analyze(ctx context.Context, data []byte) (*domain.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.options.RequestTimeout)
	defer cancel()

	started := time.Now()

	pkg, err := a.unpacker.Unpack(data)
	if err != nil {
		return nil, err
	}

	findings := a.extractor.Extract(pkg)

	// 分类与情报互相独立，静态提取完成后并发执行。
	// 推理是 CPU 密集的，放进 goroutine 避免阻塞网络查询的发起。
	type classifyResult struct {
		verdict *domain.ClassifierVerdict
		err     error
	}
	classifyCh := make(chan classifyResult, 1)
	go func() {
		v, cerr := a.adapter.Classify(findings)
		classifyCh <- classifyResult{verdict: v, err: cerr}
	}()

	intelCh := make(chan *domain.IntelligenceReport, 1)
	go func() {
		intelCh <- a.intel.Lookup(ctx, pkg.Digest)
	}()

	// 融合必须等两条支线都定论，不做部分融合
	classified := <-classifyCh
	intelligence := <-intelCh

	var verdict *domain.ClassifierVerdict
	var modelError string
	if classified.err != nil {
		if a.options.ClassifierRequired {
			return nil, classified.err
		}
		modelError = string(domain.KindOf(classified.err))
		a.logger.WithError(classified.err).Warn("Classifier unavailable, producing degraded result")
	} else {
		verdict = classified.verdict
	}

	risk := a.fusion.Fuse(findings, verdict, intelligence)
	rule := a.rulegen.Synthesize(pkg.PackageName, findings, nil)

	result := &domain.AnalysisResult{
		Meta: domain.Meta{
			Package:     pkg.PackageName,
			AppLabel:    pkg.AppLabel,
			VersionName: pkg.VersionName,
			VersionCode: pkg.VersionCode,
			SHA256:      string(pkg.Digest),
			FileSize:    pkg.FileSize,
		},
		Analysis:     *findings,
		Intelligence: *intelligence,
		ModelError:   modelError,
		Yara:         rule.Text,
	}
	result.Model = &domain.ModelSection{
		Decision:   risk.Decision,
		FinalScore: risk.Score,
	}
	if verdict != nil {
		probability := verdict.Probability * 100
		result.Model.ProbabilityFake = &probability
		result.Model.Explanations = verdict.Explanations
	}

	a.logger.WithFields(logrus.Fields{
		"package":  pkg.PackageName,
		"sha256":   pkg.Digest,
		"decision": risk.Decision,
		"score":    risk.Score,
		"duration": time.Since(started),
	}).Info("Analysis completed")

	return result, nil
}
