// Package upload 把用户文件放进对象存储，并返回一个 7 天有效的预签名下载地址。
// 预签名地址很长，通常会再交给 Shortener 换成短链。
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"filedrop.local/internal/app/shortlink"
	"filedrop.local/internal/platform/metrics"
	"github.com/google/uuid"
)

const keyPrefix = "uploads/"

// ObjectStore 是对象存储的最小接口。
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Result struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Service struct {
	store ObjectStore
	ttl   time.Duration
	now   func() time.Time
}

func NewService(store ObjectStore) *Service {
	return &Service{
		store: store,
		ttl:   shortlink.DefaultTTL, // 和短链同寿命
		now:   time.Now,
	}
}

// Upload 上传文件并预签名 GET 地址。
// 文件名为空返回 ErrValidation；存储失败返回 ErrPersistence。
func (s *Service) Upload(ctx context.Context, filename, contentType string, body io.Reader, size int64) (Result, error) {
	name := cleanName(filename)
	if name == "" {
		return Result{}, &shortlink.ValidationError{Field: "file", Reason: "file name is required"}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := keyPrefix + uuid.NewString() + "-" + name
	if err := s.store.Put(ctx, key, contentType, body, size); err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		slog.ErrorContext(ctx, "upload put failed", "key", key, "err", err)
		return Result{}, shortlink.NewPersistenceError("upload put", err)
	}

	expiresAt := s.now().Add(s.ttl)
	url, err := s.store.PresignGet(ctx, key, s.ttl)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		slog.ErrorContext(ctx, "upload presign failed", "key", key, "err", err)
		return Result{}, shortlink.NewPersistenceError("upload presign", fmt.Errorf("presign %s: %w", key, err))
	}

	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	slog.InfoContext(ctx, "file uploaded", "key", key, "size", size)
	return Result{URL: url, Key: key, ExpiresAt: expiresAt}, nil
}

// cleanName 只保留 basename，去掉路径分隔符，防止客户端把对象写到 uploads/ 之外
func cleanName(filename string) string {
	name := strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
