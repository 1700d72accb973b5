// 包 middleware：HTTP 入口中间件
package middleware

import (
	"net/http"

	"darkstore-coverage/internal/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// 文档注释：全局令牌桶限流（每秒 qps 个请求，突发上限同 qps）
// 背景：等时圈与地理编码接口会放大到外部服务的调用量，峰值时在入口直接拒绝。
// 约束：不排队，超限立即返回 429；qps<=0 时不限流。
func RateLimit(qps int) gin.HandlerFunc {
	if qps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	lim := rate.NewLimiter(rate.Limit(qps), qps)
	return func(c *gin.Context) {
		if !lim.Allow() {
			logger.L().Debug("rate_limited", "path", c.Request.URL.Path, "ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
			return
		}
		c.Next()
	}
}

// AdminToken：校验 x-admin-token；未配置令牌时一律拒绝
func AdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		t := c.GetHeader("x-admin-token")
		if token == "" || t != token {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
