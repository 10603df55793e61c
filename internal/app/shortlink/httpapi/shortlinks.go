package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"filedrop.local/gee"
	"filedrop.local/internal/app/shortlink"
	"filedrop.local/internal/app/shortlink/stats"
	"filedrop.local/internal/platform/httpmiddleware"
)

type ShortenRequest struct {
	URL string `json:"url"`
}

type ShortenResponse struct {
	ID        string    `json:"id"`
	ShortCode string    `json:"shortCode"`
	ShortURL  string    `json:"shortUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ViewsResponse struct {
	Visits int64 `json:"visits"`
}

func NewShortenHandler(s Services) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		var req ShortenRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}

		created, err := s.Shortener.Shorten(ctx.Req.Context(), req.URL, s.now())
		if err != nil {
			if errors.Is(err, shortlink.ErrValidation) {
				ctx.AbortWithError(http.StatusBadRequest, err.Error())
				return
			}
			slog.ErrorContext(ctx.Req.Context(), "shorten failed", "err", err)
			ctx.AbortWithError(http.StatusInternalServerError, "failed to create short link")
			return
		}

		shortURL := created.ShortURL
		if shortURL == "" {
			shortURL = shortlink.ShortURL(requestOrigin(ctx.Req), created.Link.Code)
		}

		resp := ShortenResponse{
			ID:        created.Link.ID,
			ShortCode: created.Link.Code,
			ShortURL:  shortURL,
		}
		if created.Link.ExpiresAt != nil {
			resp.ExpiresAt = *created.Link.ExpiresAt
		}
		ctx.JSON(http.StatusOK, resp)
	}
}

// NewRedirectHandler 解析短码（或旧的 ID 链接）并 302 到长链接。
// 不存在和已过期都是 404，对外不区分。
func NewRedirectHandler(s Services) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		code := ctx.Param("code")
		now := s.now()

		link, err := s.Resolver.Resolve(ctx.Req.Context(), code, now)
		if err != nil {
			writeLookupError(ctx, err)
			return
		}

		//异步记录点击
		if s.Collector != nil {
			s.Collector.Collect(stats.ClickEvent{
				Code:      code,
				LinkID:    link.ID,
				ClickedAt: now,
				IP:        httpmiddleware.ClientIP(ctx.Req),
				UserAgent: ctx.Req.UserAgent(),
				Referer:   ctx.Req.Referer(),
			})
		}

		ctx.Redirect(http.StatusFound, link.LongURL)
	}
}

func NewViewsHandler(a *shortlink.Accounting) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		visits, err := a.Visits(ctx.Req.Context(), ctx.Param("code"))
		if err != nil {
			writeLookupError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, ViewsResponse{Visits: visits})
	}
}

func writeLookupError(ctx *gee.Context, err error) {
	switch {
	case errors.Is(err, shortlink.ErrNotFound):
		ctx.AbortWithError(http.StatusNotFound, "link not found")
	case errors.Is(err, shortlink.ErrPersistence):
		slog.ErrorContext(ctx.Req.Context(), "shortlink lookup failed", "path", ctx.Path, "err", err)
		ctx.AbortWithError(http.StatusServiceUnavailable, "storage unavailable")
	default:
		slog.ErrorContext(ctx.Req.Context(), "shortlink lookup failed", "path", ctx.Path, "err", err)
		ctx.AbortWithError(http.StatusInternalServerError, "internal error")
	}
}

// requestOrigin 没配 PUBLIC_BASE_URL 时用请求自身的 scheme + host
func requestOrigin(req *http.Request) string {
	scheme := req.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if req.TLS != nil {
			scheme = "https"
		}
	}
	if req.Host == "" {
		return ""
	}
	return scheme + "://" + req.Host
}
