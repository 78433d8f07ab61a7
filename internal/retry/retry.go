package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Strategy 重试间隔策略
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"       // 固定间隔
	StrategyExponential Strategy = "exponential" // 指数退避
)

// Config 重试配置
type Config struct {
	MaxAttempts     int           // 最大尝试次数（含首次）
	InitialInterval time.Duration // 初始间隔
	MaxInterval     time.Duration // 最大间隔
	Strategy        Strategy
	Logger          *logrus.Logger
}

// DefaultConfig 默认配置。面向请求路径内的外部查询：
// 最多一次重试，间隔短，避免把上游抖动放大成自身延迟。
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Strategy:        StrategyExponential,
		Logger:          logrus.New(),
	}
}

// RetryableError 可重试错误接口
type RetryableError interface {
	error
	IsRetryable() bool
}

type retryableError struct {
	error
	retryable bool
}

func (e *retryableError) IsRetryable() bool {
	return e.retryable
}

func (e *retryableError) Unwrap() error {
	return e.error
}

// NewRetryableError 标记为可重试（瞬时传输错误）
func NewRetryableError(err error) error {
	return &retryableError{error: err, retryable: true}
}

// NewNonRetryableError 标记为不可重试（认证失败、配额超限等）
func NewNonRetryableError(err error) error {
	return &retryableError{error: err, retryable: false}
}

// IsRetryable 判断错误是否可重试。
// 未显式标记的错误默认可重试，上下文取消/超时除外。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.IsRetryable()
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

// Func 可重试的函数类型
type Func func(ctx context.Context) error

// Do 执行带重试的操作
func Do(ctx context.Context, config *Config, fn Func) error {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	var lastErr error
	interval := config.InitialInterval

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry canceled: %w", ctx.Err())
		default:
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 && config.Logger != nil {
				config.Logger.WithField("attempt", attempt).Info("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}
		if attempt >= config.MaxAttempts {
			break
		}

		interval = nextInterval(config.Strategy, config.InitialInterval, config.MaxInterval, attempt)
		if config.Logger != nil {
			config.Logger.WithFields(logrus.Fields{
				"next_attempt": attempt + 1,
				"wait":         interval,
				"error":        err.Error(),
			}).Warn("Operation failed, will retry")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry canceled during wait: %w", ctx.Err())
		case <-time.After(interval):
		}
	}

	return fmt.Errorf("max attempts (%d) reached: %w", config.MaxAttempts, lastErr)
}

// DoWithResult 执行带重试的操作并返回结果
func DoWithResult[T any](ctx context.Context, config *Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, config, func(ctx context.Context) error {
		res, err := fn(ctx)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

func nextInterval(strategy Strategy, initial, max time.Duration, attempt int) time.Duration {
	var next time.Duration
	switch strategy {
	case StrategyExponential:
		next = initial * time.Duration(1<<(attempt-1))
	default:
		next = initial
	}
	if next > max {
		next = max
	}
	return next
}
