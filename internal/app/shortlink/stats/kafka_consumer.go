package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConsumer 批量落库后才提交 offset，至少一次
type KafkaConsumer struct {
	reader    *kafka.Reader
	sink      Sink
	batchSize int
	interval  time.Duration
}

func NewKafkaConsumer(brokers []string, topic string, sink Sink) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  "click-events-consumer",
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		sink:      sink,
		batchSize: 100,
		interval:  time.Second,
	}
}

func (k *KafkaConsumer) Run(ctx context.Context) {
	msgs := make(chan kafka.Message, k.batchSize)
	go k.fetch(ctx, msgs)

	var (
		pending []kafka.Message
		batch   = make([]ClickEvent, 0, k.batchSize)
	)
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	// 写库成功才提交；失败就留着下个 tick 重试
	commit := func() {
		if len(pending) == 0 {
			return
		}
		if len(batch) > 0 && !flush(k.sink, batch, "kafka consumer") {
			return
		}
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := k.reader.CommitMessages(cctx, pending...); err != nil {
			slog.Error("kafka commit failed", "err", err, "count", len(pending))
		}
		cancel()
		pending, batch = pending[:0], batch[:0]
	}

	for {
		in := msgs
		if len(pending) >= k.batchSize {
			in = nil // 积压满了先不拉新消息
		}
		select {
		case msg, ok := <-in:
			if !ok {
				commit()
				return
			}
			pending = append(pending, msg)
			// 解不开的消息也提交，否则会一直卡在这条上
			if event, ok := decodeEvent(msg.Value); ok {
				batch = append(batch, event)
			}
			if len(pending) >= k.batchSize {
				commit()
			}
		case <-ticker.C:
			commit()
		case <-ctx.Done():
			// 没提交的 offset 下次启动会重放
			commit()
			return
		}
	}
}

// fetch ctx 取消后关闭 msgs
func (k *KafkaConsumer) fetch(ctx context.Context, msgs chan<- kafka.Message) {
	defer close(msgs)
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("kafka fetch failed", "err", err)
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}
		select {
		case msgs <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func decodeEvent(data []byte) (ClickEvent, bool) {
	var event ClickEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Error("unmarshal event failed", "err", err)
		return ClickEvent{}, false
	}
	if event.Code == "" {
		slog.Warn("drop click event without code")
		return ClickEvent{}, false
	}
	return event, true
}

func (k *KafkaConsumer) Close() {
	if err := k.reader.Close(); err != nil {
		slog.Error("kafka reader close failed", "err", err)
	}
}
