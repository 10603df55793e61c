// Package memstore 是 shortlink.Store 的内存实现。
//
// 用于单元测试和 STORE_DRIVER=memory 的本地开发；不持久化，不能跨实例共享。
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"filedrop.local/internal/app/shortlink"
	"github.com/google/uuid"
)

type Store struct {
	mu     sync.RWMutex
	byID   map[string]*shortlink.ShortLink
	byCode map[string][]string // 短码没有唯一约束，同一短码可能对应多条，按创建顺序排列
	codes  shortlink.CodeGenerator
	now    func() time.Time
}

type Option func(*Store)

// WithCodeGenerator 替换短码生成器（测试里用来制造固定短码或碰撞）。
func WithCodeGenerator(g shortlink.CodeGenerator) Option {
	return func(s *Store) { s.codes = g }
}

// WithClock 替换 CreatedAt 使用的时钟。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		byID:   make(map[string]*shortlink.ShortLink),
		byCode: make(map[string][]string),
		codes:  shortlink.RandomCode{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Create(ctx context.Context, longURL string, expiresAt *time.Time) (shortlink.ShortLink, error) {
	if err := ctx.Err(); err != nil {
		return shortlink.ShortLink{}, shortlink.NewPersistenceError("create", err)
	}
	link := shortlink.ShortLink{
		ID:        uuid.NewString(),
		Code:      s.codes.NewCode(),
		LongURL:   longURL,
		CreatedAt: s.now().UTC(),
		ExpiresAt: copyTime(expiresAt),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := link
	s.byID[link.ID] = &stored
	s.byCode[link.Code] = append(s.byCode[link.Code], link.ID)
	return link, nil
}

func (s *Store) FindByCode(ctx context.Context, code string) (shortlink.ShortLink, error) {
	if err := ctx.Err(); err != nil {
		return shortlink.ShortLink{}, shortlink.NewPersistenceError("find by code", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byCode[code]
	if len(ids) == 0 {
		return shortlink.ShortLink{}, shortlink.ErrNotFound
	}
	// 与 Postgres 实现一致：重复短码取最早的一条
	return snapshot(s.byID[ids[0]]), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (shortlink.ShortLink, error) {
	if err := ctx.Err(); err != nil {
		return shortlink.ShortLink{}, shortlink.NewPersistenceError("find by id", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.byID[id]
	if !ok {
		return shortlink.ShortLink{}, shortlink.ErrNotFound
	}
	return snapshot(link), nil
}

// IncrementVisits 在写锁内完成读改写，等价于数据库的 visits = visits + 1。
func (s *Store) IncrementVisits(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return shortlink.NewPersistenceError("increment visits", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.byID[id]
	if !ok {
		return shortlink.ErrNotFound
	}
	link.Visits++
	return nil
}

func (s *Store) List(ctx context.Context, limit int, cur shortlink.Cursor) ([]shortlink.ShortLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, shortlink.NewPersistenceError("list", err)
	}
	s.mu.RLock()
	all := make([]shortlink.ShortLink, 0, len(s.byID))
	for _, link := range s.byID {
		if !cur.Older(*link) {
			continue
		}
		all = append(all, snapshot(link))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// SetExpiresAt 只给测试用：模拟“过期时间已经过去”的记录。
// 业务代码不会修改 ExpiresAt。
func (s *Store) SetExpiresAt(id string, t *time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.byID[id]
	if !ok {
		return false
	}
	link.ExpiresAt = copyTime(t)
	return true
}

// 返回副本，避免调用方绕过 IncrementVisits 直接改计数
func snapshot(l *shortlink.ShortLink) shortlink.ShortLink {
	out := *l
	out.ExpiresAt = copyTime(l.ExpiresAt)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

var (
	_ shortlink.Store  = (*Store)(nil)
	_ shortlink.Lister = (*Store)(nil)
)
