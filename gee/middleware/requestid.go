package middleware

import (
	"filedrop.local/gee"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

// ReqID 沿用网关传来的 X-Request-ID，缺失或不像 ID 时重新生成。
// 结果写回请求头，错误响应和 access log 都从请求头读。
func ReqID() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id := ctx.Req.Header.Get(requestIDHeader)
		if !validReqID(id) {
			id = GenerateReqID()
			ctx.Req.Header.Set(requestIDHeader, id)
		}
		ctx.SetHeader(requestIDHeader, id)
		ctx.Next()
	}
}

// 只接受可见 ASCII，避免把换行之类写进日志
func validReqID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

func GenerateReqID() string { return uuid.NewString() }
