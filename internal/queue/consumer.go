package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ScanHandler 扫描消息处理函数
type ScanHandler func(ctx context.Context, msg *ScanMessage) error

// Consumer 扫描消息消费者，多 worker 并行处理，
// 断连后经重连信号自动重建消费。
type Consumer struct {
	mq            *RabbitMQ
	logger        *logrus.Logger
	handler       ScanHandler
	workerPool    int
	activeWorkers int32
	workerWg      sync.WaitGroup

	mu         sync.Mutex
	running    bool
	cancelFunc context.CancelFunc
}

// NewConsumer 创建消费者
func NewConsumer(mq *RabbitMQ, handler ScanHandler, workerPool int, logger *logrus.Logger) *Consumer {
	if workerPool <= 0 {
		workerPool = 1
	}
	return &Consumer{
		mq:         mq,
		logger:     logger,
		handler:    handler,
		workerPool: workerPool,
	}
}

// Start 启动消费
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.Warn("Consumer already running, skipping start")
		return nil
	}
	c.running = true
	c.mu.Unlock()

	msgs, err := c.mq.Consume()
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()

	for i := 0; i < c.workerPool; i++ {
		c.workerWg.Add(1)
		go c.worker(workerCtx, i, msgs)
	}
	c.logger.Infof("Consumer started with %d workers", c.workerPool)

	c.mq.StartConnectionWatcher()
	go c.handleReconnect(ctx)

	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.workerWg.Done()
	atomic.AddInt32(&c.activeWorkers, 1)
	defer atomic.AddInt32(&c.activeWorkers, -1)

	for {
		select {
		case <-ctx.Done():
			c.logger.Infof("Worker %d stopped", id)
			return
		case delivery, ok := <-msgs:
			if !ok {
				c.logger.Warnf("Worker %d: message channel closed", id)
				return
			}
			c.processMessage(ctx, id, delivery)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, workerID int, delivery amqp.Delivery) {
	started := time.Now()

	var msg ScanMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		c.logger.WithError(err).Error("Failed to unmarshal scan message")
		delivery.Nack(false, false) // 坏消息不重新入队
		return
	}

	c.logger.WithFields(logrus.Fields{
		"worker_id": workerID,
		"scan_id":   msg.ScanID,
		"file_name": msg.FileName,
	}).Info("Processing scan")

	if err := c.handler(ctx, &msg); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"worker_id": workerID,
			"scan_id":   msg.ScanID,
		}).Error("Scan processing failed")
		// 失败结果已落库，重新入队只会重复失败
		delivery.Nack(false, false)
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.WithError(err).Error("Failed to acknowledge message")
	}

	c.logger.WithFields(logrus.Fields{
		"worker_id": workerID,
		"scan_id":   msg.ScanID,
		"duration":  time.Since(started).Seconds(),
	}).Info("Scan completed")
}

func (c *Consumer) handleReconnect(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-c.mq.GetReconnectChan():
			if !ok {
				return
			}

			c.logger.Warn("Connection lost, attempting to reconnect...")
			c.stopWorkers()

			if err := c.mq.Reconnect(); err != nil {
				c.logger.WithError(err).Error("Failed to reconnect, will retry on next signal")
				continue
			}

			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			if err := c.Start(ctx); err != nil {
				c.logger.WithError(err).Error("Failed to restart consumer")
			}
		}
	}
}

// stopWorkers 停止所有 worker，等待在手任务完成
func (c *Consumer) stopWorkers() {
	c.mu.Lock()
	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}
	c.running = false
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("All workers stopped gracefully")
	case <-time.After(30 * time.Second):
		c.logger.Warn("Timeout waiting for workers to stop")
	}
}

// Stop 停止消费者
func (c *Consumer) Stop() {
	c.logger.Info("Stopping consumer...")
	c.stopWorkers()
	c.logger.Info("Consumer stopped")
}

// ActiveWorkers 当前活跃 worker 数
func (c *Consumer) ActiveWorkers() int {
	return int(atomic.LoadInt32(&c.activeWorkers))
}
