package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"filedrop.local/internal/platform/metrics"
)

// ClickEvent 一次跳转的明细记录。只用于明细日志，不参与 visits 计数。
type ClickEvent struct {
	Code      string    `json:"code"`
	LinkID    string    `json:"link_id"`
	ClickedAt time.Time `json:"clicked_at"` //点击时间
	IP        string    `json:"ip"`         //点击者的IP
	UserAgent string    `json:"user_agent"` //客户端信息（浏览器、操作系统）
	Referer   string    `json:"referer"`    //从哪个页面点击过来的
}

// Collector 收集器接口，Collect 不能阻塞跳转请求
type Collector interface {
	Collect(event ClickEvent)
	Close()
}

// ChannelCollector 基于 channel 的进程内收集器
type ChannelCollector struct {
	mu      sync.RWMutex
	ch      chan ClickEvent
	closed  bool
	dropped atomic.Uint64
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{
		ch: make(chan ClickEvent, bufferSize),
	}
}

func (c *ChannelCollector) Collect(event ClickEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- event:
		metrics.ClickEvents.WithLabelValues("queued").Inc()
	default:
		// 通道满了，丢弃
		c.dropped.Add(1)
		metrics.ClickEvents.WithLabelValues("dropped").Inc()
	}
}

// Dropped 返回因缓冲区满而丢弃的事件数
func (c *ChannelCollector) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *ChannelCollector) Events() <-chan ClickEvent {
	return c.ch
}

func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// NopCollector 关闭明细日志时使用
type NopCollector struct{}

func (NopCollector) Collect(ClickEvent) {}
func (NopCollector) Close()             {}
