package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"filedrop.local/internal/platform/metrics"
	"github.com/segmentio/kafka-go"
)

// KafkaCollector 异步写 Kafka，发送结果在 Completion 回调里统计
type KafkaCollector struct {
	writer *kafka.Writer
}

func NewKafkaCollector(brokers []string, topic string) *KafkaCollector {
	return &KafkaCollector{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // 按短码分区，同一短码有序
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Completion:   reportDelivery,
	}}
}

func reportDelivery(msgs []kafka.Message, err error) {
	if err != nil {
		metrics.ClickEvents.WithLabelValues("dropped").Add(float64(len(msgs)))
		slog.Error("kafka delivery failed", "err", err, "count", len(msgs))
	}
}

func (k *KafkaCollector) Collect(event ClickEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal click event failed", "err", err)
		return
	}
	// Async 模式下只会返回配置类错误
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{Key: []byte(event.Code), Value: value}); err != nil {
		metrics.ClickEvents.WithLabelValues("dropped").Inc()
		slog.Error("kafka enqueue failed", "err", err)
		return
	}
	metrics.ClickEvents.WithLabelValues("queued").Inc()
}

// Close 会等待缓冲中的消息发出
func (k *KafkaCollector) Close() {
	if err := k.writer.Close(); err != nil {
		slog.Error("kafka writer close failed", "err", err)
	}
}
