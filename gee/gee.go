package gee

import (
	"log/slog"
	"net/http"
	"strings"
)

// Engine 实现 http.Handler，本身也是根分组
type Engine struct {
	*RouterGroup
	router   *router
	groups   []*RouterGroup
	noRoute  []HandlerFunc
	noMethod []HandlerFunc
}

// RouterGroup 共享前缀和中间件；中间件按路径前缀生效，404/405 也会经过
type RouterGroup struct {
	prefix      string
	middlewares []HandlerFunc
	engine      *Engine
}

func New() *Engine {
	e := &Engine{router: newRouter()}
	e.RouterGroup = &RouterGroup{engine: e}
	e.groups = []*RouterGroup{e.RouterGroup}
	e.noRoute = []HandlerFunc{func(ctx *Context) {
		ctx.AbortWithError(http.StatusNotFound, "route not found")
	}}
	e.noMethod = []HandlerFunc{func(ctx *Context) {
		ctx.AbortWithError(http.StatusMethodNotAllowed, "method not allowed")
	}}
	return e
}

// Default 带 Recovery 和 Logger
func Default() *Engine {
	e := New()
	e.Use(Recovery(), Logger())
	return e
}

func (e *Engine) NoRoute(handlers ...HandlerFunc) { e.noRoute = handlers }

func (e *Engine) NoMethod(handlers ...HandlerFunc) { e.noMethod = handlers }

func (g *RouterGroup) Group(prefix string) *RouterGroup {
	child := &RouterGroup{prefix: g.prefix + prefix, engine: g.engine}
	g.engine.groups = append(g.engine.groups, child)
	return child
}

func (g *RouterGroup) Use(middlewares ...HandlerFunc) {
	g.middlewares = append(g.middlewares, middlewares...)
}

func (g *RouterGroup) Handle(method, path string, handlers ...HandlerFunc) {
	pattern := g.prefix + path
	slog.Debug("route registered", "method", method, "pattern", pattern)
	g.engine.router.addRoute(method, pattern, handlers...)
}

func (g *RouterGroup) GET(path string, handlers ...HandlerFunc) {
	g.Handle(http.MethodGet, path, handlers...)
}

func (g *RouterGroup) POST(path string, handlers ...HandlerFunc) {
	g.Handle(http.MethodPost, path, handlers...)
}

func (g *RouterGroup) HEAD(path string, handlers ...HandlerFunc) {
	g.Handle(http.MethodHead, path, handlers...)
}

// underPrefix 按段比较，/api 不会匹配 /apix
func underPrefix(path, prefix string) bool {
	if prefix == "" || path == prefix {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return strings.HasSuffix(prefix, "/") || path[len(prefix)] == '/'
}

// canonicalPath 去掉空段，和路由匹配用同一种切分；
// 否则 /api//admin/x 能匹配路由却绕开 /api/admin 分组的中间件
func canonicalPath(p string) string {
	return "/" + strings.Join(splitPath(p, false), "/")
}

func (e *Engine) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := newContext(w, req)
	ctx.Path = canonicalPath(req.URL.Path)
	ctx.engine = e
	for _, g := range e.groups {
		if g.prefix == "" || underPrefix(ctx.Path, canonicalPath(g.prefix)) {
			ctx.handlers = append(ctx.handlers, g.middlewares...)
		}
	}
	e.router.handle(ctx)
}
