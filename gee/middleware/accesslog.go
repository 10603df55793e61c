package middleware

import (
	"log/slog"
	"time"

	"filedrop.local/gee"
)

// AccessLog 每个请求一条 "access"。
// route 是路由模板（/s/:code），path 带真实短码，查单条短链按 path 搜。
func AccessLog() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		start := time.Now()
		ctx.Next()

		status := ctx.Writer.Status()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		slog.LogAttrs(ctx.Req.Context(), level, "access",
			slog.String("request_id", ctx.Req.Header.Get(requestIDHeader)),
			slog.String("method", ctx.Method),
			slog.String("path", ctx.Path),
			slog.String("route", ctx.RoutePattern),
			slog.Int("status", status),
			slog.Int("bytes", ctx.Writer.Size()),
			slog.Int64("latency_ms", time.Since(start).Milliseconds()),
		)
	}
}
