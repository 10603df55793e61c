package httpmiddleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// 单值头，按优先级排列；X-Forwarded-For 在两者之间单独处理
var (
	preferredHeaders = []string{"CF-Connecting-IP"}
	fallbackHeaders  = []string{"X-Real-IP"}
)

// ClientIP 返回客户端 IP，限流和点击日志都用它。
// 只有直连方是本机或内网代理时才看转发头，公网来源伪造的 X-Forwarded-For 不生效。
func ClientIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	remote, err := netip.ParseAddr(host)
	if err != nil || !trustedProxy(remote) {
		return host
	}

	if ip, ok := firstHeaderIP(req, preferredHeaders); ok {
		return ip
	}
	if ip, ok := forwardedFor(req); ok {
		return ip
	}
	if ip, ok := firstHeaderIP(req, fallbackHeaders); ok {
		return ip
	}
	return host
}

func firstHeaderIP(req *http.Request, names []string) (string, bool) {
	for _, name := range names {
		v := strings.TrimSpace(req.Header.Get(name))
		if _, err := netip.ParseAddr(v); err == nil {
			return v, true
		}
	}
	return "", false
}

// forwardedFor 从右往左跳过可信代理，取第一个外部地址。
// 左边的部分客户端可以随便写，只有右侧由我们的代理追加。
// 全是内网地址时取最左一个；遇到解析不了的就停，不再往左信任。
func forwardedFor(req *http.Request) (string, bool) {
	var hops []string
	for _, line := range req.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(line, ",")...)
	}
	last := ""
	for i := len(hops) - 1; i >= 0; i-- {
		v := strings.TrimSpace(hops[i])
		ip, err := netip.ParseAddr(v)
		if err != nil {
			break
		}
		if !trustedProxy(ip) {
			return v, true
		}
		last = v
	}
	return last, last != ""
}

// trustedProxy: loopback、RFC1918、IPv6 ULA
func trustedProxy(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsLoopback() || ip.IsPrivate()
}
