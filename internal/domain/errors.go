package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 分析失败类型
type ErrorKind string

const (
	ErrMalformedPackage      ErrorKind = "malformed_package"
	ErrMissingManifest       ErrorKind = "missing_manifest"
	ErrUnsignedPackage       ErrorKind = "unsigned_package"
	ErrResourceLimitExceeded ErrorKind = "resource_limit_exceeded"
	ErrModelUnavailable      ErrorKind = "model_unavailable"
	ErrFeatureMismatch       ErrorKind = "feature_mismatch"
	ErrConfigurationInvalid  ErrorKind = "configuration_invalid"
	ErrUnknown               ErrorKind = "unknown"
)

// AnalysisError 带类型的分析错误。对外只暴露类型和可读原因，
// 不泄漏第三方服务的内部堆栈细节。
type AnalysisError struct {
	Kind  ErrorKind
	Cause string
	err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *AnalysisError) Unwrap() error {
	return e.err
}

// NewAnalysisError 创建分析错误
func NewAnalysisError(kind ErrorKind, cause string) *AnalysisError {
	return &AnalysisError{Kind: kind, Cause: cause}
}

// WrapAnalysisError 包装底层错误，保留错误链
func WrapAnalysisError(kind ErrorKind, cause string, err error) *AnalysisError {
	return &AnalysisError{Kind: kind, Cause: cause, err: err}
}

// KindOf 提取错误类型，非 AnalysisError 返回 ErrUnknown
func KindOf(err error) ErrorKind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ErrUnknown
}

// IsFatalUnpacking 解包阶段错误无法产出部分结果
func IsFatalUnpacking(kind ErrorKind) bool {
	switch kind {
	case ErrMalformedPackage, ErrMissingManifest, ErrUnsignedPackage, ErrResourceLimitExceeded:
		return true
	}
	return false
}
