package shortlink

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL 是新建短链的有效期，与对象存储预签名 URL 的有效期保持一致（7 天）。
// 短链过期时，它指向的直链也已经失效，因此两者必须一起变动。
const DefaultTTL = 7 * 24 * time.Hour

// ShortLink 是短链领域对象。
//
// 说明：
// - ID：全局唯一标识（UUID），创建后不可变，也是访问计数的更新键
// - Code：对外分享的短码（8 位 URL 安全字符）
// - LongURL：目标地址，存储层把它当作不透明字符串
// - ExpiresAt：为 nil 表示永不过期
// - Visits：访问次数，只由 Resolver 的原子自增修改
type ShortLink struct {
	ID        string
	Code      string
	LongURL   string
	CreatedAt time.Time
	ExpiresAt *time.Time
	Visits    int64
}

// ExpiredAt 判断在 now 时刻短链是否已过期。
// 比较是严格的：now 恰好等于 ExpiresAt 时仍然有效。
func (l ShortLink) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// Store 是短链的持久化契约。
//
// 约定：
// - 查询未命中返回 ErrNotFound；存储不可用返回 ErrPersistence，两者不能混用
// - IncrementVisits 必须在存储层原子完成（单条 UPDATE 或等价原语），不能由调用方先读后写
// - 实现不做内部重试，重试由调用方决定
type Store interface {
	Create(ctx context.Context, longURL string, expiresAt *time.Time) (ShortLink, error)
	FindByCode(ctx context.Context, code string) (ShortLink, error)
	FindByID(ctx context.Context, id string) (ShortLink, error)
	IncrementVisits(ctx context.Context, id string) error
}

// Cursor 是列表翻页位置，取上一页最后一条的 (CreatedAt, ID)。
// 零值表示从最新一条开始。只用 CreatedAt 翻页会跳过同一时刻创建的其余行。
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

func CursorOf(l ShortLink) Cursor { return Cursor{CreatedAt: l.CreatedAt, ID: l.ID} }

func (c Cursor) IsZero() bool { return c.CreatedAt.IsZero() && c.ID == "" }

// Older 判断 l 是否排在游标之后，即 (created_at, id) < (c.CreatedAt, c.ID)
func (c Cursor) Older(l ShortLink) bool {
	if c.IsZero() {
		return true
	}
	if !l.CreatedAt.Equal(c.CreatedAt) {
		return l.CreatedAt.Before(c.CreatedAt)
	}
	return l.ID < c.ID
}

// String 是对外的不透明 token，ParseCursor 反解
func (c Cursor) String() string {
	if c.IsZero() {
		return ""
	}
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func ParseCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: cursor", ErrValidation)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return Cursor{}, fmt.Errorf("%w: cursor", ErrValidation)
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: cursor", ErrValidation)
	}
	return Cursor{CreatedAt: at, ID: id}, nil
}

// Lister 是调试列表用的可选能力，按 (created_at, id) 倒序。
// 返回严格排在 cur 之后的行。
type Lister interface {
	List(ctx context.Context, limit int, cur Cursor) ([]ShortLink, error)
}
