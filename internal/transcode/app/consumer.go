package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"hls_transcode_service/internal/transcode/domain"
	"hls_transcode_service/pkg/database"
	errprocess "hls_transcode_service/pkg/err"
	"hls_transcode_service/pkg/logger"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// EnqueueConsumer 從 RabbitMQ 收轉碼請求並寫入 JobQueue
type EnqueueConsumer struct {
	rabbit     database.RabbitRepo
	queue      JobQueue
	queueName  string
	retryPause time.Duration
}

// NewEnqueueConsumer retryPause 為暫時性錯誤 requeue 前的等待時間
func NewEnqueueConsumer(rabbit database.RabbitRepo, queue JobQueue, queueName string, retryPause time.Duration) *EnqueueConsumer {
	if queueName == "" {
		queueName = domain.QueueName
	}
	if retryPause <= 0 {
		retryPause = 5 * time.Second
	}
	return &EnqueueConsumer{
		rabbit:     rabbit,
		queue:      queue,
		queueName:  queueName,
		retryPause: retryPause,
	}
}

// Start 阻塞直到 ctx 結束或 channel 關閉
func (c *EnqueueConsumer) Start(ctx context.Context) error {
	if err := c.rabbit.DeclareQueue(c.queueName); err != nil {
		return err
	}
	msgs, err := c.rabbit.Consume(c.queueName, "", 1)
	if err != nil {
		return err
	}

	logger.Log.Info("enqueue consumer started", zap.String("queue", c.queueName))
	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				logger.Log.Warn("RabbitMQ 消費 channel 已關閉", zap.String("queue", c.queueName))
				return errors.New("rabbitmq delivery channel closed")
			}
			c.Handle(ctx, d)
		case <-ctx.Done():
			logger.Log.Info("enqueue consumer stopped")
			return nil
		}
	}
}

// Handle 格式錯誤不 requeue，暫時性錯誤等待後 requeue
func (c *EnqueueConsumer) Handle(ctx context.Context, d amqp.Delivery) {
	var req domain.EnqueueRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		logger.Log.Warn("解析轉碼請求失敗", zap.Error(err))
		c.nack(d, false)
		return
	}

	jobID, err := c.queue.Enqueue(ctx, req)
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			logger.Log.Warn("ack failed", zap.String("job_id", jobID), zap.Error(err))
		}
	case errors.Is(err, errprocess.ErrInvalidInput):
		c.nack(d, false)
	default:
		logger.Log.Warn("enqueue failed, requeue", zap.Error(err))
		select {
		case <-time.After(c.retryPause):
		case <-ctx.Done():
		}
		c.nack(d, true)
	}
}

func (c *EnqueueConsumer) nack(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		logger.Log.Warn("Nack 訊息失敗", zap.Error(err))
	}
}
