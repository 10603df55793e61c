package shortlink

import (
	"context"
	"strings"
	"time"

	"filedrop.local/internal/platform/metrics"
)

// Created 是创建短链的结果。
// ShortURL 只有在配置了 baseURL 时才会填；否则由 HTTP 层用请求的 origin 拼出来。
type Created struct {
	Link     ShortLink
	ShortURL string
}

// Shortener 是创建短链的入口。
//
// 不做幂等：同一个长链接调用两次会得到两条不同短码的记录，这是既定行为。
type Shortener struct {
	store   Store
	baseURL string
}

func NewShortener(store Store, baseURL string) *Shortener {
	return &Shortener{
		store:   store,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

// Shorten 校验长链接，按 now + DefaultTTL 计算过期时间并落库。
// 校验失败返回 ErrValidation，不会调用存储。
func (s *Shortener) Shorten(ctx context.Context, longURL string, now time.Time) (Created, error) {
	if err := ValidateURL(longURL); err != nil {
		return Created{}, err
	}

	expiresAt := now.Add(DefaultTTL)
	link, err := s.store.Create(ctx, longURL, &expiresAt)
	if err != nil {
		return Created{}, err
	}
	metrics.ShortlinksCreated.Inc()

	created := Created{Link: link}
	if s.baseURL != "" {
		created.ShortURL = ShortURL(s.baseURL, link.Code)
	}
	return created, nil
}

// ShortURL 拼接对外的短链地址，例如 https://s.example.com/s/ab12CD34。
func ShortURL(origin, code string) string {
	return strings.TrimRight(origin, "/") + "/s/" + code
}
