package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// RabbitMQConfig RabbitMQ 连接配置
type RabbitMQConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	VHost     string
	Heartbeat time.Duration // 默认 10 秒
}

// RabbitMQ 连接封装。持有单个 channel，断连时经 reconnect
// 信号通道通知消费侧重建消费。
type RabbitMQ struct {
	config        *RabbitMQConfig
	conn          *amqp.Connection
	channel       *amqp.Channel
	logger        *logrus.Logger
	queueName     string
	reconnect     chan bool
	maxRetries    int
	prefetchCount int // 与 worker 数量匹配以并行消费

	mu            sync.RWMutex
	closed        bool
	connNotify    chan *amqp.Error
	channelNotify chan *amqp.Error
}

// NewRabbitMQ 创建客户端并建立连接
func NewRabbitMQ(config *RabbitMQConfig, queueName string, prefetchCount int, logger *logrus.Logger) (*RabbitMQ, error) {
	if prefetchCount <= 0 {
		prefetchCount = 1
	}
	if config.Heartbeat == 0 {
		config.Heartbeat = 10 * time.Second
	}

	mq := &RabbitMQ{
		config:        config,
		logger:        logger,
		queueName:     queueName,
		reconnect:     make(chan bool, 10),
		maxRetries:    10,
		prefetchCount: prefetchCount,
	}

	if err := mq.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return mq, nil
}

func (mq *RabbitMQ) connect() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	url := fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		mq.config.User, mq.config.Password, mq.config.Host, mq.config.Port, mq.config.VHost)

	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: mq.config.Heartbeat,
		Locale:    "en_US",
	})
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	mq.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	mq.channel = ch

	if err := ch.Qos(mq.prefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	// durable 队列：扫描请求不因 broker 重启丢失
	if _, err := ch.QueueDeclare(mq.queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	mq.connNotify = make(chan *amqp.Error, 1)
	mq.channelNotify = make(chan *amqp.Error, 1)
	mq.conn.NotifyClose(mq.connNotify)
	mq.channel.NotifyClose(mq.channelNotify)

	mq.logger.WithFields(logrus.Fields{
		"host":           mq.config.Host,
		"port":           mq.config.Port,
		"queue":          mq.queueName,
		"prefetch_count": mq.prefetchCount,
	}).Info("Connected to RabbitMQ")

	return nil
}

// StartConnectionWatcher 监听连接/通道关闭事件并发出重连信号
func (mq *RabbitMQ) StartConnectionWatcher() {
	go func() {
		for {
			mq.mu.RLock()
			if mq.closed {
				mq.mu.RUnlock()
				return
			}
			connNotify := mq.connNotify
			channelNotify := mq.channelNotify
			mq.mu.RUnlock()

			select {
			case err, ok := <-connNotify:
				if !ok && mq.isClosed() {
					return
				}
				if err != nil {
					mq.logger.WithError(err).Error("RabbitMQ connection closed unexpectedly")
				}
				mq.triggerReconnect()
			case err, ok := <-channelNotify:
				if !ok && mq.isClosed() {
					return
				}
				if err != nil {
					mq.logger.WithError(err).Error("RabbitMQ channel closed unexpectedly")
				}
				mq.triggerReconnect()
			}
		}
	}()
}

func (mq *RabbitMQ) isClosed() bool {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.closed
}

func (mq *RabbitMQ) triggerReconnect() {
	select {
	case mq.reconnect <- true:
	default:
	}
}

// Reconnect 关闭旧连接并带退避重建
func (mq *RabbitMQ) Reconnect() error {
	mq.closeConnections()

	for retries := 0; retries < mq.maxRetries; retries++ {
		mq.logger.Infof("Attempting to reconnect to RabbitMQ (attempt %d/%d)", retries+1, mq.maxRetries)
		if err := mq.connect(); err != nil {
			mq.logger.WithError(err).Error("Failed to reconnect")
			time.Sleep(time.Duration(retries+1) * time.Second)
			continue
		}
		mq.logger.Info("Successfully reconnected to RabbitMQ")
		return nil
	}
	return fmt.Errorf("failed to reconnect after %d attempts", mq.maxRetries)
}

func (mq *RabbitMQ) closeConnections() {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.channel != nil {
		mq.channel.Close()
		mq.channel = nil
	}
	if mq.conn != nil {
		mq.conn.Close()
		mq.conn = nil
	}
}

// Publish 发布持久化消息
func (mq *RabbitMQ) Publish(ctx context.Context, body []byte) error {
	mq.mu.RLock()
	ch := mq.channel
	mq.mu.RUnlock()
	if ch == nil {
		return fmt.Errorf("channel is nil")
	}

	return ch.PublishWithContext(ctx, "", mq.queueName, false, false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		})
}

// Consume 打开手动确认的消费通道
func (mq *RabbitMQ) Consume() (<-chan amqp.Delivery, error) {
	mq.mu.RLock()
	ch := mq.channel
	mq.mu.RUnlock()
	if ch == nil {
		return nil, fmt.Errorf("channel is nil")
	}

	msgs, err := ch.Consume(mq.queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}
	return msgs, nil
}

// GetReconnectChan 重连信号通道
func (mq *RabbitMQ) GetReconnectChan() <-chan bool {
	return mq.reconnect
}

// IsConnected 当前连接是否可用
func (mq *RabbitMQ) IsConnected() bool {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.conn != nil && !mq.conn.IsClosed()
}

// Close 关闭连接
func (mq *RabbitMQ) Close() error {
	mq.mu.Lock()
	mq.closed = true
	mq.mu.Unlock()

	mq.closeConnections()
	mq.logger.Info("RabbitMQ connection closed")
	return nil
}
