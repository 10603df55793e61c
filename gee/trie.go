package gee

import "strings"

// node 是按 / 切分的前缀树节点，handlers 非空表示某条路由在这里结束
type node struct {
	seg      string
	static   []*node
	param    *node // :name，每层最多一个
	catchAll *node // *name，只能是最后一段

	pattern  string // 完整路由，如 /s/:code
	handlers []HandlerFunc
}

// splitPath 切分路径；pattern 遇到 *name 就截断，请求路径原样保留
func splitPath(path string, pattern bool) []string {
	segs := make([]string, 0, 4)
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		segs = append(segs, seg)
		if pattern && seg[0] == '*' {
			break
		}
	}
	return segs
}

func (n *node) add(pattern string, segs []string, handlers []HandlerFunc) {
	cur := n
	for _, seg := range segs {
		cur = cur.child(pattern, seg)
	}
	if cur.handlers != nil {
		panic("gee: duplicate route " + pattern)
	}
	cur.pattern = pattern
	cur.handlers = handlers
}

func (n *node) child(pattern, seg string) *node {
	var slot **node
	switch seg[0] {
	case ':':
		slot = &n.param
	case '*':
		slot = &n.catchAll
	default:
		for _, c := range n.static {
			if c.seg == seg {
				return c
			}
		}
		c := &node{seg: seg}
		n.static = append(n.static, c)
		return c
	}
	if *slot == nil {
		*slot = &node{seg: seg}
	} else if (*slot).seg != seg {
		// /s/:code 和 /s/:id 不能同时存在
		panic("gee: " + pattern + " conflicts with existing wildcard " + (*slot).seg)
	}
	return *slot
}

// lookup 同一层按 静态段 > :param > *catchAll 的顺序尝试，失败会回溯。
// /s/healthz 命中静态路由，/s/ab12CD34 落到 :code。
func (n *node) lookup(segs []string, params map[string]string) *node {
	if len(segs) == 0 {
		if n.handlers == nil {
			return nil
		}
		return n
	}

	for _, c := range n.static {
		if c.seg == segs[0] {
			if found := c.lookup(segs[1:], params); found != nil {
				return found
			}
			break
		}
	}

	if n.param != nil {
		if found := n.param.lookup(segs[1:], params); found != nil {
			params[n.param.seg[1:]] = segs[0]
			return found
		}
	}

	if n.catchAll != nil && n.catchAll.handlers != nil {
		if name := n.catchAll.seg[1:]; name != "" {
			params[name] = strings.Join(segs, "/")
		}
		return n.catchAll
	}
	return nil
}
