package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apk-analysis/apk-verdict-go/internal/classifier"
	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/apk-analysis/apk-verdict-go/internal/fusion"
	"github.com/apk-analysis/apk-verdict-go/internal/intel"
	"github.com/apk-analysis/apk-verdict-go/internal/rulegen"
	"github.com/apk-analysis/apk-verdict-go/internal/staticanalysis"
	"github.com/apk-analysis/apk-verdict-go/internal/unpacker"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `<?xml version="1.0" encoding="utf-8"?>
<manifest xmlns:android="http://schemas.android.com/apk/res/android"
    package="com.sample.app" android:versionName="1.0" android:versionCode="1">
    <uses-permission android:name="android.permission.INTERNET"/>
    <uses-permission android:name="android.permission.READ_SMS"/>
    <application android:label="Sample"/>
</manifest>`

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func buildAPK(t *testing.T, dexContent []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	f, err := w.Create("AndroidManifest.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(testManifest))
	require.NoError(t, err)

	f, err = w.Create("classes.dex")
	require.NoError(t, err)
	_, err = f.Write(dexContent)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	return buf.Bytes()
}

func loadTestModel(t *testing.T) *classifier.Model {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"schema_version": "fv1",
		"model_version": "logreg-test",
		"features": ["dangerous_permission_count", "suspicious_url_count"],
		"scaler_mean": [0, 0],
		"scaler_scale": [1, 1],
		"weights": [1.0, 0.5],
		"bias": -2.0
	}`), 0644))
	m, err := classifier.LoadModel(path)
	require.NoError(t, err)
	return m
}

func newAnalyzer(t *testing.T, model *classifier.Model, options Options) *Analyzer {
	t.Helper()
	logger := testLogger()
	return NewAnalyzer(
		unpacker.NewUnpacker(unpacker.DefaultLimits(), logger),
		staticanalysis.NewExtractor(staticanalysis.Policy{
			DangerousPermissions: []string{"android.permission.READ_SMS"},
		}, logger),
		classifier.NewAdapter(model, logger),
		intel.NewAggregator(nil, logger),
		fusion.NewEngine(fusion.Weights{Static: 0.2, Classifier: 0.5, Intel: 0.3}, 30, 60),
		rulegen.NewSynthesizer(logger),
		options,
		logger,
	)
}

func TestAnalyzeEndToEnd(t *testing.T) {
	a := newAnalyzer(t, loadTestModel(t), Options{})
	data := buildAPK(t, []byte("visit https://evil.example.com/gate now\x00"))

	result, err := a.Analyze(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, "com.sample.app", result.Meta.Package)
	assert.Equal(t, "Sample", result.Meta.AppLabel)
	assert.Len(t, result.Meta.SHA256, 64)

	assert.Equal(t, []string{"android.permission.READ_SMS"}, result.Analysis.DangerousPermissions)
	assert.Equal(t, 1, result.Analysis.Suspicious.URLCount)

	// 分类成功：model 子对象带概率与解释
	require.NotNil(t, result.Model)
	require.NotNil(t, result.Model.ProbabilityFake)
	assert.NotEmpty(t, result.Model.Explanations)
	assert.Empty(t, result.ModelError)
	assert.NotEmpty(t, result.Model.Decision)

	// 规则总是产出
	assert.Contains(t, result.Yara, "rule apk_com_sample_app")
	assert.Contains(t, result.Yara, "https://evil.example.com/gate")

	// 未注册任何情报服务
	assert.Nil(t, result.Intelligence.VirusTotal)
	assert.Nil(t, result.Intelligence.MalwareBazaar)
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := newAnalyzer(t, loadTestModel(t), Options{})
	data := buildAPK(t, []byte("static content"))

	r1, err := a.Analyze(context.Background(), data)
	require.NoError(t, err)
	r2, err := a.Analyze(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, r1.Meta.SHA256, r2.Meta.SHA256)
	assert.Equal(t, r1.Model.FinalScore, r2.Model.FinalScore)
	assert.Equal(t, r1.Yara, r2.Yara)
}

func TestAnalyzeDegradedWithoutModel(t *testing.T) {
	a := newAnalyzer(t, nil, Options{ClassifierRequired: false})
	data := buildAPK(t, []byte("plain content"))

	result, err := a.Analyze(context.Background(), data)
	require.NoError(t, err)

	// 降级：结论与分数仍在，概率与解释缺席
	assert.Equal(t, string(domain.ErrModelUnavailable), result.ModelError)
	require.NotNil(t, result.Model)
	assert.Nil(t, result.Model.ProbabilityFake)
	assert.Empty(t, result.Model.Explanations)
	assert.NotEmpty(t, result.Model.Decision)
}

func TestAnalyzeClassifierRequiredFailsHard(t *testing.T) {
	a := newAnalyzer(t, nil, Options{ClassifierRequired: true})
	data := buildAPK(t, []byte("plain content"))

	_, err := a.Analyze(context.Background(), data)
	require.Error(t, err)
	assert.Equal(t, domain.ErrModelUnavailable, domain.KindOf(err))
}

func TestAnalyzeUnpackErrorPropagates(t *testing.T) {
	a := newAnalyzer(t, loadTestModel(t), Options{})

	_, err := a.Analyze(context.Background(), []byte("not an archive"))
	require.Error(t, err)
	assert.Equal(t, domain.ErrMalformedPackage, domain.KindOf(err))
}

func TestAnalyzeHonorsRequestTimeout(t *testing.T) {
	a := newAnalyzer(t, loadTestModel(t), Options{RequestTimeout: 50 * time.Millisecond})
	data := buildAPK(t, []byte("content"))

	started := time.Now()
	_, err := a.Analyze(context.Background(), data)
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)
}
