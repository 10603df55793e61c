package stats

import (
	"context"
	"log/slog"
	"time"

	"filedrop.local/internal/platform/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sink 批量落地点击明细
type Sink interface {
	WriteBatch(ctx context.Context, batch []ClickEvent) error
}

// PGSink 把明细写进 click_events。只插入，不碰 shortlinks.visits。
type PGSink struct {
	db *pgxpool.Pool
}

func NewPGSink(db *pgxpool.Pool) *PGSink {
	return &PGSink{db: db}
}

func (s *PGSink) WriteBatch(ctx context.Context, batch []ClickEvent) error {
	b := &pgx.Batch{}
	for _, e := range batch {
		var linkID any
		if e.LinkID != "" {
			linkID = e.LinkID
		}
		b.Queue(`INSERT INTO click_events (short_code, link_id, clicked_at, ip, user_agent, referer) VALUES ($1, $2::uuid, $3, $4, $5, $6)`,
			e.Code, linkID, e.ClickedAt, e.IP, e.UserAgent, e.Referer)
	}
	return s.db.SendBatch(ctx, b).Close()
}

// 消费点击事件
type Consumer struct {
	sink      Sink
	collector *ChannelCollector
	batchSize int
	interval  time.Duration
}

func NewConsumer(sink Sink, collector *ChannelCollector) *Consumer {
	return &Consumer{
		sink:      sink,
		collector: collector,
		batchSize: 100,         //批量写入大小
		interval:  time.Second, //最大等待时间
	}
}

// 阻塞 消费循环，collector 关闭或 ctx 取消时把剩余事件写完再退出
func (c *Consumer) Run(ctx context.Context) {
	runBatches(ctx, c.collector.Events(), c.sink, c.batchSize, c.interval, "click stats")
}

// StopAndDrain 先关 collector，等 consumer 把缓冲里的事件写完自己退出，再取消它的 ctx。
// consumerDone 为 nil 表示没有本地 consumer；超时返回 false，剩下的交给取消后的最后一次 flush。
func StopAndDrain(collector Collector, consumerDone <-chan struct{}, cancel context.CancelFunc, timeout time.Duration) bool {
	collector.Close()
	defer cancel()
	if consumerDone == nil {
		return true
	}
	select {
	case <-consumerDone:
		return true
	case <-time.After(timeout):
		slog.Warn("click stats drain timed out", "timeout", timeout)
		cancel()
		<-consumerDone
		return false
	}
}

func runBatches(ctx context.Context, events <-chan ClickEvent, sink Sink, batchSize int, interval time.Duration, name string) {
	batch := make([]ClickEvent, 0, batchSize)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// 已经进了缓冲的事件一起写掉
		drain:
			for {
				select {
				case event, ok := <-events:
					if !ok {
						break drain
					}
					batch = append(batch, event)
				default:
					break drain
				}
			}
			flush(sink, batch, name) //清理剩余事件
			return
		case event, ok := <-events:
			if !ok {
				flush(sink, batch, name)
				return
			}
			batch = append(batch, event)
			if len(batch) >= batchSize {
				flush(sink, batch, name)
				batch = batch[:0] //清空切片，但保留容量不变，避免反复分配内存
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flush(sink, batch, name)
				batch = batch[:0]
			}
		}
	}
}

// flush 用独立的 context：退出时 ctx 已取消，剩余事件仍要写完
func flush(sink Sink, batch []ClickEvent, name string) bool {
	if len(batch) == 0 {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sink.WriteBatch(ctx, batch); err != nil {
		metrics.ClickEvents.WithLabelValues("failed").Add(float64(len(batch)))
		slog.Error(name+": write batch failed", "err", err, "count", len(batch))
		return false
	}
	metrics.ClickEvents.WithLabelValues("written").Add(float64(len(batch)))
	slog.Debug(name+": flushed", "count", len(batch))
	return true
}
