package app

import (
	"context"
	"encoding/json"

	"hls_transcode_service/internal/transcode/domain"
	"hls_transcode_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Notifier 轉碼完成通知，失敗只記錄不回傳
type Notifier interface {
	Notify(ctx context.Context, event domain.CompletionEvent)
}

// MessageWriter kafka.Writer 的子集
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher redis pub/sub 的子集
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// KafkaNotifier 以 destinationId 為 key 寫入 topic
type KafkaNotifier struct {
	writer MessageWriter
}

// NewKafkaNotifier create KafkaNotifier
func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func (n *KafkaNotifier) Notify(ctx context.Context, event domain.CompletionEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("marshal completion event failed", zap.String("job_id", event.JobID), zap.Error(err))
		return
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.DestinationID),
		Value: data,
	})
	if err != nil {
		logger.Log.Warn("kafka completion notify failed", zap.String("job_id", event.JobID), zap.Error(err))
	}
}

// RedisNotifier 發布到 redis channel，api 端轉送給 websocket
type RedisNotifier struct {
	pub     Publisher
	channel string
}

// NewRedisNotifier create RedisNotifier
func NewRedisNotifier(pub Publisher, channel string) *RedisNotifier {
	return &RedisNotifier{pub: pub, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, event domain.CompletionEvent) {
	if err := n.pub.Publish(ctx, n.channel, event); err != nil {
		logger.Log.Warn("redis completion notify failed",
			zap.String("job_id", event.JobID),
			zap.String("channel", n.channel),
			zap.Error(err),
		)
	}
}

// LogNotifier 沒有設定其他通知方式時使用
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event domain.CompletionEvent) {
	logger.Log.Info("transcode completed",
		zap.String("job_id", event.JobID),
		zap.String("destination_id", event.DestinationID),
		zap.String("manifest_url", event.ManifestURL),
	)
}

// MultiNotifier 依序通知全部
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, event domain.CompletionEvent) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, event)
		}
	}
}
