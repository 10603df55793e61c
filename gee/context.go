package gee

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
)

type H map[string]any

// 中间件嵌套调用 Next 时 index 还会继续自增，留出余量防止溢出
const abortIndex = math.MaxInt32

// Context 贯穿一次请求：路由参数、handler 链、包装过的 ResponseWriter
type Context struct {
	Writer *ResponseWriter
	Req    *http.Request

	Path         string
	Method       string
	Params       map[string]string
	RoutePattern string // 命中的路由模板，未命中为空

	handlers []HandlerFunc
	index    int
	engine   *Engine
}

func newContext(w http.ResponseWriter, req *http.Request) *Context {
	return &Context{
		Writer: NewResponseWriter(w),
		Req:    req,
		Path:   req.URL.Path,
		Method: req.Method,
		index:  -1,
	}
}

// Next 执行后续 handler；中间件在 Next 前后各做一半工作
func (c *Context) Next() {
	for c.index++; c.index < len(c.handlers); c.index++ {
		c.handlers[c.index](c)
	}
}

func (c *Context) Abort() { c.index = abortIndex }

func (c *Context) IsAborted() bool { return c.index >= abortIndex }

func (c *Context) Param(key string) string { return c.Params[key] }

func (c *Context) Query(key string) string { return c.Req.URL.Query().Get(key) }

func (c *Context) Status(code int) { c.Writer.WriteHeader(code) }

func (c *Context) SetHeader(key, value string) { c.Writer.SetHeader(key, value) }

func (c *Context) String(code int, format string, values ...any) {
	c.SetHeader("Content-Type", "text/plain; charset=utf-8")
	c.Status(code)
	fmt.Fprintf(c.Writer, format, values...)
}

// JSON 先编码再写头，编码失败还能回 500
func (c *Context) JSON(code int, obj any) {
	body, err := json.Marshal(obj)
	if err != nil {
		slog.ErrorContext(c.Req.Context(), "encode response failed", "err", err)
		code = http.StatusInternalServerError
		body = []byte(`{"code":500,"message":"Internal Server Error"}`)
	}
	c.SetHeader("Content-Type", "application/json")
	c.Status(code)
	c.Writer.Write(append(body, '\n'))
}

// Redirect 只接受 3xx；短链跳转不允许被缓存
func (c *Context) Redirect(code int, location string) {
	if code < http.StatusMultipleChoices || code > http.StatusPermanentRedirect {
		panic(fmt.Sprintf("gee: cannot redirect with status code %d", code))
	}
	c.SetHeader("Location", location)
	c.SetHeader("Cache-Control", "no-store")
	c.Status(code)
}

// FormFile 超过 maxMemory 的部分由 net/http 落临时文件
func (c *Context) FormFile(name string, maxMemory int64) (multipart.File, *multipart.FileHeader, error) {
	if c.Req.MultipartForm == nil {
		if err := c.Req.ParseMultipartForm(maxMemory); err != nil {
			return nil, nil, err
		}
	}
	return c.Req.FormFile(name)
}

// Fail 纯文本错误，给没有 JSON 约定的内部路由用
func (c *Context) Fail(code int, msg string) {
	c.String(code, "%s", msg)
	c.Abort()
}

func (c *Context) AbortWithStatus(code int) {
	c.Status(code)
	c.Abort()
}

// AbortWithStatusJSON 响应已经写出时只中断链，不再改写
func (c *Context) AbortWithStatusJSON(code int, obj any) {
	c.Abort()
	if c.Writer.Written() {
		return
	}
	c.JSON(code, obj)
}

func (c *Context) AbortWithError(code int, message string) {
	c.AbortWithStatusJSON(code, NewErrorResponse(c, code, message))
}
