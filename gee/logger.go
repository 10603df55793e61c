package gee

import (
	"log/slog"
	"time"
)

// Logger 只打 debug 级别；线上用 middleware.AccessLog
func Logger() HandlerFunc {
	return func(ctx *Context) {
		start := time.Now()
		ctx.Next()
		slog.Debug("request",
			"method", ctx.Method,
			"uri", ctx.Req.RequestURI,
			"status", ctx.Writer.Status(),
			"bytes", ctx.Writer.Size(),
			"latency_us", time.Since(start).Microseconds(),
		)
	}
}
