package httpmiddleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"filedrop.local/gee"
	"filedrop.local/internal/platform/ratelimit"
)

const rateLimitTimeout = 50 * time.Millisecond

// RateLimit 按 ClientIP 计数。limiter 为 nil 或 Redis 出错都放行，跳转不依赖 Redis 可用
func RateLimit(limiter *ratelimit.Limiter, rule ratelimit.Rule) gee.HandlerFunc {
	if limiter == nil {
		return func(ctx *gee.Context) { ctx.Next() }
	}
	return func(ctx *gee.Context) {
		rctx, cancel := context.WithTimeout(ctx.Req.Context(), rateLimitTimeout)
		allowed, retryAfter, err := limiter.Allow(rctx, rule, ClientIP(ctx.Req))
		cancel()

		switch {
		case err != nil:
			slog.WarnContext(ctx.Req.Context(), "rate limit check failed", "rule", rule.Prefix, "err", err)
		case !allowed:
			if retryAfter > 0 {
				ctx.SetHeader("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
			}
			ctx.AbortWithError(http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		ctx.Next()
	}
}

// Retry-After 只有秒精度，向上取整
func retryAfterSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
