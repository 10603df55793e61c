package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"filedrop.local/gee"
	"filedrop.local/internal/app/shortlink"
	"filedrop.local/internal/platform/auth"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type LoginRequest struct {
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LinkView 是调试列表里的一行
type LinkView struct {
	ID        string     `json:"id"`
	Code      string     `json:"shortCode"`
	LongURL   string     `json:"longUrl"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt"`
	Visits    int64      `json:"visits"`
}

type ListResponse struct {
	Items []LinkView `json:"items"`
	// Next 原样作为下一页的 cursor 参数；为空表示没有更多
	Next string `json:"next,omitempty"`
}

func NewAdminLoginHandler(a *auth.AdminLogin) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		var req LoginRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		token, exp, err := a.Login(req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				slog.WarnContext(ctx.Req.Context(), "admin login rejected", "ip", ctx.Req.RemoteAddr)
				ctx.AbortWithError(http.StatusUnauthorized, "invalid credentials")
				return
			}
			slog.ErrorContext(ctx.Req.Context(), "admin login failed", "err", err)
			ctx.AbortWithError(http.StatusInternalServerError, "login failed")
			return
		}
		ctx.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: exp})
	}
}

// NewListHandler 按创建时间倒序分页列出短链，?limit=&cursor=（上一页的 next）
func NewListHandler(l shortlink.Lister) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		limit := defaultListLimit
		if v := ctx.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				ctx.AbortWithError(http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxListLimit)
		}

		cur, err := shortlink.ParseCursor(ctx.Query("cursor"))
		if err != nil {
			ctx.AbortWithError(http.StatusBadRequest, "invalid cursor")
			return
		}

		links, err := l.List(ctx.Req.Context(), limit, cur)
		if err != nil {
			slog.ErrorContext(ctx.Req.Context(), "list shortlinks failed", "err", err)
			ctx.AbortWithError(http.StatusServiceUnavailable, "storage unavailable")
			return
		}

		resp := ListResponse{Items: make([]LinkView, 0, len(links))}
		for _, link := range links {
			resp.Items = append(resp.Items, LinkView{
				ID:        link.ID,
				Code:      link.Code,
				LongURL:   link.LongURL,
				CreatedAt: link.CreatedAt,
				ExpiresAt: link.ExpiresAt,
				Visits:    link.Visits,
			})
		}
		if len(links) == limit {
			resp.Next = shortlink.CursorOf(links[len(links)-1]).String()
		}
		ctx.JSON(http.StatusOK, resp)
	}
}
