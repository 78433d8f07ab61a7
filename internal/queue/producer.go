package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ScanMessage 异步扫描请求。FilePath 指向落盘的待分析包，
// 消费侧读文件并跑完整管线。
type ScanMessage struct {
	ScanID   string `json:"scan_id"`
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	Source   string `json:"source"` // watcher / api
}

// Producer 扫描消息生产者
type Producer struct {
	mq     *RabbitMQ
	logger *logrus.Logger
}

// NewProducer 创建生产者
func NewProducer(mq *RabbitMQ, logger *logrus.Logger) *Producer {
	return &Producer{mq: mq, logger: logger}
}

// PublishScan 发布扫描请求
func (p *Producer) PublishScan(ctx context.Context, msg *ScanMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal scan message: %w", err)
	}

	if err := p.mq.Publish(ctx, body); err != nil {
		p.logger.WithError(err).WithField("scan_id", msg.ScanID).Error("Failed to publish scan")
		return fmt.Errorf("failed to publish: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"scan_id":   msg.ScanID,
		"file_name": msg.FileName,
		"source":    msg.Source,
	}).Info("Scan published to queue")

	return nil
}
