package retry

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(maxAttempts int) *Config {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Config{
		MaxAttempts:     maxAttempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Strategy:        StrategyFixed,
		Logger:          logger,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testConfig(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient failure")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoMaxAttemptsReached(t *testing.T) {
	calls := 0
	failure := errors.New("always down")
	err := Do(context.Background(), testConfig(3), func(ctx context.Context) error {
		calls++
		return failure
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "max attempts (3) reached")
	assert.ErrorIs(t, err, failure)
}

func TestDoNonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	cause := errors.New("bad credentials")
	err := Do(context.Background(), testConfig(5), func(ctx context.Context) error {
		calls++
		return NewNonRetryableError(cause)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "non-retryable error")
	assert.ErrorIs(t, err, cause)
}

func TestDoContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, testConfig(3), func(ctx context.Context) error {
		calls++
		return errors.New("never reached")
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoNilConfigUsesDefault(t *testing.T) {
	err := Do(context.Background(), nil, func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), testConfig(3), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("flaky")
		}
		return "value", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "value", got)
	assert.Equal(t, 2, calls)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(NewNonRetryableError(errors.New("auth"))))
	assert.True(t, IsRetryable(NewRetryableError(errors.New("conn reset"))))
	// 未标记的错误默认可重试
	assert.True(t, IsRetryable(errors.New("unknown failure")))
}

func TestNextInterval(t *testing.T) {
	initial := 100 * time.Millisecond
	max := 400 * time.Millisecond

	assert.Equal(t, initial, nextInterval(StrategyFixed, initial, max, 3))

	assert.Equal(t, 100*time.Millisecond, nextInterval(StrategyExponential, initial, max, 1))
	assert.Equal(t, 200*time.Millisecond, nextInterval(StrategyExponential, initial, max, 2))
	assert.Equal(t, 400*time.Millisecond, nextInterval(StrategyExponential, initial, max, 3))
	// 封顶于 MaxInterval
	assert.Equal(t, max, nextInterval(StrategyExponential, initial, max, 10))
}
