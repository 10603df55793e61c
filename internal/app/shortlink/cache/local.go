package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LocalCache 基于 ristretto 的本地内存缓存（L1）。
// 值是 entry：要么是一条短链记录，要么是“确定不存在”的负缓存。
type LocalCache struct {
	cache    *ristretto.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

type entry struct {
	rec      record
	negative bool
}

// NewLocalCache 创建本地缓存
// maxItems: 最大缓存条目数（建议 10000-100000）
// maxCost: 最大条目数上限（按条目计 cost=1）
func NewLocalCache(maxItems int64, maxCost int64) (*LocalCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10, // 计数器数量，建议为 maxItems 的 10 倍
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{
		cache:    cache,
		ttl:      5 * time.Minute,  // 多实例下 L1 不会被别的实例失效，TTL 要短
		emptyTTL: 10 * time.Second, // 负缓存 TTL
	}, nil
}

func (l *LocalCache) Get(key string) (entry, bool) {
	v, ok := l.cache.Get(key)
	if !ok {
		return entry{}, false
	}
	e, ok := v.(entry)
	return e, ok
}

func (l *LocalCache) Set(key string, rec record) {
	l.cache.SetWithTTL(key, entry{rec: rec}, 1, l.ttl)
}

func (l *LocalCache) SetNotFound(key string) {
	l.cache.SetWithTTL(key, entry{negative: true}, 1, l.emptyTTL)
}

func (l *LocalCache) Del(key string) {
	l.cache.Del(key)
}

// Wait 等待缓冲区里的写入生效。ristretto 的 Set 是异步的。
func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
