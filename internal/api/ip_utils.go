package api

import (
	"net"
	"net/http"
	"strings"
)

// 文档注释：获取访问者 IP（用于按来源推断默认城市）
// 背景：多层代理环境下优先常见反向代理头，最后回退远端地址；显式参数 ip 便于调试。
// 约束：头部存在伪造风险，结果只用于选择默认城市，不用于鉴权或限流。
func visitorIP(r *http.Request) net.IP {
	if q := r.URL.Query().Get("ip"); q != "" {
		return net.ParseIP(strings.TrimSpace(q))
	}
	h := r.Header
	for _, name := range []string{"x-forwarded-for", "cf-connecting-ip", "x-real-ip", "x-client-ip"} {
		if x := h.Get(name); x != "" {
			return net.ParseIP(strings.TrimSpace(strings.Split(x, ",")[0]))
		}
	}
	if x := h.Get("forwarded"); x != "" {
		i := strings.Index(strings.ToLower(x), "for=")
		if i >= 0 {
			y := x[i+4:]
			if p := strings.IndexByte(y, ';'); p >= 0 {
				y = y[:p]
			}
			if p := strings.IndexByte(y, ','); p >= 0 {
				y = y[:p]
			}
			y = strings.Trim(y, "\" ")
			y = strings.TrimSuffix(strings.TrimPrefix(y, "["), "]")
			return net.ParseIP(y)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}
