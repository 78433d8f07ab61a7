package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := NewAnalysisError(ErrMalformedPackage, "not a zip archive")
	assert.Equal(t, ErrMalformedPackage, KindOf(err))

	// 包装后类型仍可穿透提取
	wrapped := fmt.Errorf("analyze failed: %w", err)
	assert.Equal(t, ErrMalformedPackage, KindOf(wrapped))

	assert.Equal(t, ErrUnknown, KindOf(errors.New("plain error")))
	assert.Equal(t, ErrUnknown, KindOf(nil))
}

func TestWrapAnalysisErrorKeepsChain(t *testing.T) {
	cause := errors.New("zip: not a valid zip file")
	err := WrapAnalysisError(ErrMalformedPackage, "cannot open archive", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "malformed_package: cannot open archive", err.Error())
	assert.Equal(t, "cannot open archive", err.Cause)
}

func TestIsFatalUnpacking(t *testing.T) {
	assert.True(t, IsFatalUnpacking(ErrMalformedPackage))
	assert.True(t, IsFatalUnpacking(ErrMissingManifest))
	assert.True(t, IsFatalUnpacking(ErrUnsignedPackage))
	assert.True(t, IsFatalUnpacking(ErrResourceLimitExceeded))

	assert.False(t, IsFatalUnpacking(ErrModelUnavailable))
	assert.False(t, IsFatalUnpacking(ErrFeatureMismatch))
	assert.False(t, IsFatalUnpacking(ErrUnknown))
}
