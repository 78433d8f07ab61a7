package config

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerLevelAndFormat(t *testing.T) {
	logger := InitLogger(&LogConfig{Level: "debug", Format: "json"})
	require.NotNil(t, logger)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
	assert.True(t, logger.ReportCaller)
}

func TestInitLoggerTextFormatDefault(t *testing.T) {
	logger := InitLogger(&LogConfig{Level: "warn", Format: "text"})
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

// 非法级别不报错，回落到 info
func TestInitLoggerBadLevelFallsBack(t *testing.T) {
	logger := InitLogger(&LogConfig{Level: "loudest", Format: "text"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
