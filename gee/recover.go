package gee

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
)

// stack 从 panic 现场往上取最多 32 帧
func stack(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// Recovery 把 panic 变成 500 JSON；响应已经写出（比如 302 之后）就只记日志
func Recovery() HandlerFunc {
	return func(ctx *Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			slog.Error("panic recovered",
				"request_id", ctx.Req.Header.Get("X-Request-ID"),
				"method", ctx.Method,
				"path", ctx.Path,
				"panic", fmt.Sprint(rec),
				"stack", stack(4),
			)
			if ctx.Writer.Written() {
				ctx.Abort()
				return
			}
			ctx.AbortWithError(http.StatusInternalServerError, "Internal Server Error")
		}()
		ctx.Next()
	}
}
