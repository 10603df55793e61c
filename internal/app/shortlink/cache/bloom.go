package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter 装着所有已知的查找键（c:短码、i:ID），挡掉一定不存在的 key。
// 多实例部署时别的实例新建的短链进不来，只适合单实例。
type BloomFilter struct {
	mu sync.RWMutex
	f  *bloom.BloomFilter
}

// NewBloomFilter n 是预计的键数量（每条短链两个），fp 是可接受的误判率
func NewBloomFilter(n uint, fp float64) *BloomFilter {
	return &BloomFilter{f: bloom.NewWithEstimates(n, fp)}
}

func (b *BloomFilter) Add(keys ...string) {
	b.mu.Lock()
	for _, k := range keys {
		b.f.AddString(k)
	}
	b.mu.Unlock()
}

// MightExist 为 false 时 key 一定不存在
func (b *BloomFilter) MightExist(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.f.TestString(key)
}

// Count 是估算值，只用于日志
func (b *BloomFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.f.ApproximatedSize()
}
