// Package cache 给 shortlink.Store 加一层读缓存：L1 ristretto，L2 Redis，可选布隆过滤器。
//
// 只缓存不可变字段（ID、短码、长链接、创建/过期时间）。访问次数永远不进缓存，
// 计数和统计查询都直接走下层存储。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"filedrop.local/internal/app/shortlink"
	"filedrop.local/internal/platform/metrics"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const notFoundSentinel = "__nil__"

// record 是缓存里的短链，不含 visits。
type record struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	LongURL   string     `json:"long_url"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func toRecord(l shortlink.ShortLink) record {
	return record{ID: l.ID, Code: l.Code, LongURL: l.LongURL, CreatedAt: l.CreatedAt, ExpiresAt: l.ExpiresAt}
}

func (r record) link() shortlink.ShortLink {
	return shortlink.ShortLink{ID: r.ID, Code: r.Code, LongURL: r.LongURL, CreatedAt: r.CreatedAt, ExpiresAt: r.ExpiresAt}
}

func codeKey(code string) string { return "slc:" + code }
func idKey(id string) string     { return "sli:" + id }

type Store struct {
	next     shortlink.Store
	client   *redis.Client // 可以为 nil：只用 L1
	local    *LocalCache   // 可以为 nil：只用 L2
	bloom    *BloomFilter
	ready    atomic.Bool // 布隆过滤器预热完成后才参与判断
	ttl      time.Duration
	emptyTTL time.Duration
	sf       singleflight.Group
}

type Option func(*Store)

func WithRedis(client *redis.Client) Option {
	return func(s *Store) { s.client = client }
}

func WithLocal(local *LocalCache) Option {
	return func(s *Store) { s.local = local }
}

// WithBloom 打开布隆过滤器；需要调用 Warm 之后才生效。
func WithBloom(b *BloomFilter) Option {
	return func(s *Store) { s.bloom = b }
}

func New(next shortlink.Store, opts ...Option) *Store {
	s := &Store{
		next:     next,
		ttl:      time.Hour,
		emptyTTL: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create 写穿：落库成功后直接填充两个查找键，覆盖可能存在的负缓存。
func (s *Store) Create(ctx context.Context, longURL string, expiresAt *time.Time) (shortlink.ShortLink, error) {
	link, err := s.next.Create(ctx, longURL, expiresAt)
	if err != nil {
		return link, err
	}
	if s.bloom != nil {
		s.bloom.Add(codeKey(link.Code), idKey(link.ID))
	}
	s.put(ctx, codeKey(link.Code), link)
	s.put(ctx, idKey(link.ID), link)
	return link, nil
}

func (s *Store) FindByCode(ctx context.Context, code string) (shortlink.ShortLink, error) {
	return s.find(ctx, codeKey(code), func(ctx context.Context) (shortlink.ShortLink, error) {
		return s.next.FindByCode(ctx, code)
	})
}

func (s *Store) FindByID(ctx context.Context, id string) (shortlink.ShortLink, error) {
	return s.find(ctx, idKey(id), func(ctx context.Context) (shortlink.ShortLink, error) {
		return s.next.FindByID(ctx, id)
	})
}

// IncrementVisits 不经过缓存。
func (s *Store) IncrementVisits(ctx context.Context, id string) error {
	return s.next.IncrementVisits(ctx, id)
}

func (s *Store) find(ctx context.Context, key string, load func(context.Context) (shortlink.ShortLink, error)) (shortlink.ShortLink, error) {
	if s.bloom != nil && s.ready.Load() && !s.bloom.MightExist(key) {
		metrics.CacheOperations.WithLabelValues("bloom", "reject").Inc()
		return shortlink.ShortLink{}, shortlink.ErrNotFound
	}

	// L1
	if s.local != nil {
		if e, ok := s.local.Get(key); ok {
			if e.negative {
				metrics.CacheOperations.WithLabelValues("l1", "negative").Inc()
				return shortlink.ShortLink{}, shortlink.ErrNotFound
			}
			metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
			return e.rec.link(), nil
		}
		metrics.CacheOperations.WithLabelValues("l1", "miss").Inc()
	}

	// L2
	if e, ok := s.getRemote(ctx, key); ok {
		if s.local != nil {
			if e.negative {
				s.local.SetNotFound(key)
			} else {
				s.local.Set(key, e.rec)
			}
		}
		if e.negative {
			return shortlink.ShortLink{}, shortlink.ErrNotFound
		}
		return e.rec.link(), nil
	}

	// 回源：同一个键的并发未命中只查一次库
	v, err, _ := s.sf.Do(key, func() (any, error) {
		link, err := load(ctx)
		if err != nil {
			// 存储故障不缓存，只有“确定不存在”才写负缓存
			if errors.Is(err, shortlink.ErrNotFound) {
				s.putNotFound(ctx, key)
			}
			return nil, err
		}
		s.put(ctx, key, link)
		return link, nil
	})
	if err != nil {
		return shortlink.ShortLink{}, err
	}
	link := v.(shortlink.ShortLink)
	link.Visits = 0
	return link, nil
}

func (s *Store) getRemote(ctx context.Context, key string) (entry, bool) {
	if s.client == nil {
		return entry{}, false
	}
	res, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return entry{}, false
	}
	if err != nil {
		// Redis 故障降级为直接查库
		metrics.CacheOperations.WithLabelValues("l2", "error").Inc()
		slog.WarnContext(ctx, "shortlink cache get failed", "key", key, "err", err)
		return entry{}, false
	}
	if res == notFoundSentinel {
		metrics.CacheOperations.WithLabelValues("l2", "negative").Inc()
		return entry{negative: true}, true
	}
	var rec record
	if err := json.Unmarshal([]byte(res), &rec); err != nil {
		metrics.CacheOperations.WithLabelValues("l2", "error").Inc()
		slog.WarnContext(ctx, "shortlink cache decode failed", "key", key, "err", err)
		return entry{}, false
	}
	metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()
	return entry{rec: rec}, true
}

func (s *Store) put(ctx context.Context, key string, link shortlink.ShortLink) {
	rec := toRecord(link)
	if s.local != nil {
		s.local.Del(key)
		s.local.Set(key, rec)
	}
	if s.client == nil {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, b, s.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "shortlink cache set failed", "key", key, "err", err)
	}
}

// putNotFound 用明确哨兵值做负缓存，避免缓存穿透。
// 不要用 "" 作为哨兵值，容易把“未命中”和“命中空值”混淆。
func (s *Store) putNotFound(ctx context.Context, key string) {
	if s.local != nil {
		s.local.SetNotFound(key)
	}
	if s.client == nil {
		return
	}
	if err := s.client.Set(ctx, key, notFoundSentinel, s.emptyTTL).Err(); err != nil {
		slog.WarnContext(ctx, "shortlink cache set not-found failed", "key", key, "err", err)
	}
}

// Warm 把 lister 里现有的全部短链灌进布隆过滤器，完成后过滤器才开始拦截。
// 返回加入的短链条数。
func (s *Store) Warm(ctx context.Context, lister shortlink.Lister, pageSize int) (int, error) {
	if s.bloom == nil {
		return 0, nil
	}
	if pageSize <= 0 {
		pageSize = 1000
	}

	n := 0
	var cur shortlink.Cursor
	for {
		page, err := lister.List(ctx, pageSize, cur)
		if err != nil {
			return n, err
		}
		for _, l := range page {
			s.bloom.Add(codeKey(l.Code), idKey(l.ID))
			n++
		}
		if len(page) < pageSize {
			break
		}
		cur = shortlink.CursorOf(page[len(page)-1])
	}

	s.ready.Store(true)
	slog.InfoContext(ctx, "shortlink bloom filter warmed", "links", n, "approx_keys", s.bloom.Count())
	return n, nil
}

// Close 关闭本地缓存
func (s *Store) Close() {
	if s.local != nil {
		s.local.Close()
		slog.Info("本地缓存已关闭")
	}
}

var _ shortlink.Store = (*Store)(nil)
