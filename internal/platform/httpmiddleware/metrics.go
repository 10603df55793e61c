package httpmiddleware

import (
	"strconv"
	"time"

	"filedrop.local/gee"
	"filedrop.local/internal/platform/metrics"
)

// 未命中路由统一记成一个 label，避免扫描器把基数打爆
const unmatchedRoute = "UNMATCHED"

func Metrics() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		route := ctx.RoutePattern
		if route == "" {
			route = unmatchedRoute
		}
		metrics.HTTPInflightRequests.Inc()
		start := time.Now()
		// panic 穿过这里时也要记
		defer func() {
			metrics.HTTPInflightRequests.Dec()
			metrics.HTTPRequestsTotal.WithLabelValues(ctx.Method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
			metrics.HTTPRequestDurationSeconds.WithLabelValues(ctx.Method, route).Observe(time.Since(start).Seconds())
		}()
		ctx.Next()
	}
}
