package httpmiddleware

import (
	"filedrop.local/gee"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TraceName 把 otelhttp 建的 span 改名为路由模板（/s/:code），避免按真实路径产生无限多的 span 名
func TraceName() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		route := ctx.RoutePattern
		if route == "" {
			route = unmatchedRoute
		}
		span := trace.SpanFromContext(ctx.Req.Context())
		span.SetName(ctx.Method + " " + route)
		span.SetAttributes(attribute.String("http.route", route))
		if id := ctx.Req.Header.Get("X-Request-ID"); id != "" {
			span.SetAttributes(attribute.String("request.id", id))
		}
		ctx.Next()
	}
}
