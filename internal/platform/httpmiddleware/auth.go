package httpmiddleware

import (
	"net/http"
	"strings"

	"filedrop.local/gee"
	"filedrop.local/internal/platform/auth"
)

// bearerToken 取 "Bearer <token>"，scheme 大小写不敏感
func bearerToken(req *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(req.Header.Get("Authorization")), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" || strings.ContainsRune(token, ' ') {
		return "", false
	}
	return token, true
}

// AuthRequired 校验 JWT，把身份放进 request context
func AuthRequired(ts auth.TokenService) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		if ctx.Req.Header.Get("Authorization") == "" {
			ctx.AbortWithError(http.StatusUnauthorized, "missing authorization header")
			return
		}
		token, ok := bearerToken(ctx.Req)
		if !ok {
			ctx.AbortWithError(http.StatusUnauthorized, "invalid authorization format")
			return
		}
		claims, err := ts.Verify(token)
		if err != nil {
			ctx.AbortWithError(http.StatusUnauthorized, "invalid token")
			return
		}
		id := auth.Identity{Subject: claims.Subject, Role: claims.Role}
		ctx.Req = ctx.Req.WithContext(auth.WithIdentity(ctx.Req.Context(), id))
		ctx.Next()
	}
}

// RequireRole 必须挂在 AuthRequired 后面
func RequireRole(role string) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, ok := auth.GetIdentity(ctx.Req.Context())
		switch {
		case !ok:
			ctx.AbortWithError(http.StatusUnauthorized, "unauthorized")
		case id.Role != role:
			ctx.AbortWithError(http.StatusForbidden, "forbidden")
		default:
			ctx.Next()
		}
	}
}
