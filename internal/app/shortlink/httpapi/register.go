package httpapi

import (
	"net/http"
	"time"

	"filedrop.local/gee"
	"filedrop.local/internal/app/shortlink"
	"filedrop.local/internal/app/shortlink/stats"
	"filedrop.local/internal/app/shortlink/upload"
	"filedrop.local/internal/platform/auth"
	"filedrop.local/internal/platform/httpmiddleware"
	"filedrop.local/internal/platform/ratelimit"
)

// Services 是 handler 需要的依赖，由 cmd/api 组装。
//
// Lister / Uploads / Admin 为 nil 时对应的路由不挂载；Limiter 为 nil 时不限流。
type Services struct {
	Shortener  *shortlink.Shortener
	Resolver   *shortlink.Resolver
	Accounting *shortlink.Accounting
	Lister     shortlink.Lister
	Uploads    *upload.Service
	Admin      *auth.AdminLogin
	Tokens     auth.TokenService
	Collector  stats.Collector
	Limiter    *ratelimit.Limiter
	Now        func() time.Time
}

func (s Services) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// RegisterAPIRoutes 在 /api 分组下挂载 JSON 接口。
// 本包只做传输层的翻译，领域逻辑在 internal/app/shortlink。
func RegisterAPIRoutes(api *gee.RouterGroup, s Services) {
	//创建短链 10次/分钟
	api.POST("/shorten", httpmiddleware.RateLimit(s.Limiter, ratelimit.ShortenRule), NewShortenHandler(s))
	api.GET("/views/:code", NewViewsHandler(s.Accounting))

	if s.Uploads != nil {
		api.POST("/upload", httpmiddleware.RateLimit(s.Limiter, ratelimit.UploadRule), NewUploadHandler(s))
	}

	if s.Admin == nil || !s.Admin.Enabled() {
		return
	}
	api.POST("/admin/login", httpmiddleware.RateLimit(s.Limiter, ratelimit.LoginRule), NewAdminLoginHandler(s.Admin))

	// 分组中间件按路径前缀生效，所以 login 不能放进这个分组
	if s.Lister != nil {
		links := api.Group("/admin/shortlinks")
		links.Use(httpmiddleware.AuthRequired(s.Tokens), httpmiddleware.RequireRole(auth.RoleAdmin))
		links.GET("", NewListHandler(s.Lister))
	}
}

// RegisterPublicRoutes 挂载浏览器直接访问的路由。
// 跳转入口不放在 /api 下，短链就是 https://host/s/{code}。
func RegisterPublicRoutes(engine *gee.Engine, s Services) {
	//跳转 100次/分钟
	engine.GET("/s/:code", httpmiddleware.RateLimit(s.Limiter, ratelimit.RedirectRule), NewRedirectHandler(s))
	engine.GET("/healthz", func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "ok")
	})
}
