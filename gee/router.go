package gee

import (
	"slices"
	"strings"
)

type HandlerFunc func(*Context)

// router 每个 HTTP method 一棵树
type router struct {
	trees map[string]*node
}

func newRouter() *router {
	return &router{trees: make(map[string]*node)}
}

func (r *router) addRoute(method, pattern string, handlers ...HandlerFunc) {
	if len(handlers) == 0 {
		panic("gee: " + method + " " + pattern + " has no handler")
	}
	root, ok := r.trees[method]
	if !ok {
		root = &node{}
		r.trees[method] = root
	}
	root.add(pattern, splitPath(pattern, true), slices.Clone(handlers))
}

func (r *router) find(method, path string) (*node, map[string]string) {
	root, ok := r.trees[method]
	if !ok {
		return nil, nil
	}
	params := make(map[string]string)
	n := root.lookup(splitPath(path, false), params)
	if n == nil {
		return nil, nil
	}
	return n, params
}

// allowed 列出能匹配 path 的 method，用于 405 的 Allow 头
func (r *router) allowed(path string) []string {
	var methods []string
	for method := range r.trees {
		if n, _ := r.find(method, path); n != nil {
			methods = append(methods, method)
		}
	}
	slices.Sort(methods)
	return methods
}

func (r *router) handle(c *Context) {
	if n, params := r.find(c.Method, c.Path); n != nil {
		c.Params = params
		c.RoutePattern = n.pattern
		c.handlers = append(c.handlers, n.handlers...)
		c.Next()
		return
	}

	if methods := r.allowed(c.Path); len(methods) > 0 {
		c.SetHeader("Allow", strings.Join(methods, ","))
		c.handlers = append(c.handlers, c.engine.noMethod...)
	} else {
		c.handlers = append(c.handlers, c.engine.noRoute...)
	}
	c.Next()
}
