package intel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
)

// Client 单个威胁情报服务的查询客户端
type Client interface {
	Name() string
	// Lookup 按内容摘要查询。命中返回 found 报告，未收录返回 not_found 报告；
	// 传输/认证/配额问题返回 error，由聚合层折算成 unavailable。
	Lookup(ctx context.Context, digest domain.ContentDigest) (*domain.ServiceReport, error)
}

// serviceError 查询失败。reason 是对外可读的失败原因，
// 不携带上游服务的内部细节；retryable 决定是否允许单次重试。
type serviceError struct {
	reason    string
	retryable bool
	err       error
}

func (e *serviceError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.reason, e.err)
	}
	return e.reason
}

func (e *serviceError) IsRetryable() bool {
	return e.retryable
}

func (e *serviceError) Unwrap() error {
	return e.err
}

func transientError(reason string, err error) error {
	return &serviceError{reason: reason, retryable: true, err: err}
}

func permanentError(reason string) error {
	return &serviceError{reason: reason, retryable: false}
}

// failureReason 折算对外暴露的 unavailable 原因。
// 超时/取消优先于包装错误自带的 reason，单次查询超时要报成 timeout
// 而不是笼统的 transport error。
func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var se *serviceError
	if errors.As(err, &se) {
		return se.reason
	}
	return "transport error"
}

// ServiceConfig 单个服务的查询参数
type ServiceConfig struct {
	Timeout    time.Duration
	MaxRetries int // 瞬时错误的最大重试次数
}
