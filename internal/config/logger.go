package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
)

// InitLogger 按配置构建 logrus 实例。
// 非法级别回落到 info，坏配置不阻止服务启动。
func InitLogger(cfg *LogConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// caller 只保留 文件名:行号，容器里完整路径没有意义
	logger.SetReportCaller(true)
	caller := func(f *runtime.Frame) (string, string) {
		return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  "2006-01-02 15:04:05",
			CallerPrettyfier: caller,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  "2006/01/02 15:04:05",
			CallerPrettyfier: caller,
		})
	}

	logger.SetOutput(os.Stdout)
	return logger
}
