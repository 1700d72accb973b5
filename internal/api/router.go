package api

import (
	"net/http"
	"strings"

	"darkstore-coverage/internal/logger"
	"darkstore-coverage/internal/metrics"
	"darkstore-coverage/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RouterConfig：路由挂载参数
type RouterConfig struct {
	APIBase      string
	UIDir        string
	AdminToken   string
	RateLimitQPS int // 0 表示不限流
}

// 文档注释：构建 gin 引擎
// 背景：API 挂载在 APIBase 下，指标位于 {APIBase}/metrics，其余路径回退到前端静态文件。
func NewRouter(cfg RouterConfig, h *Handler) *gin.Engine {
	base := "/" + strings.Trim(cfg.APIBase, "/")
	r := gin.New()
	r.Use(gin.Recovery(), logger.Access(logger.L()))

	g := r.Group(base)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	v1 := g.Group("/v1", middleware.RateLimit(cfg.RateLimitQPS))
	{
		v1.GET("/cities", h.Cities)
		v1.GET("/brands", h.Brands)
		v1.GET("/stores", h.Stores)
		v1.GET("/stores.kml", h.StoresKML)
		v1.GET("/default-city", h.DefaultCity)
		v1.GET("/status", h.Status)
		v1.GET("/isochrone", h.Isochrone)
		v1.POST("/zones", h.Zones)
		v1.POST("/accessibility", h.Accessibility)
		v1.GET("/geocode", h.Geocode)
		v1.DELETE("/cache", middleware.AdminToken(cfg.AdminToken), h.ClearCache)
	}

	// 向前端暴露 API 基础路径，避免硬编码
	r.GET("/config.js", func(c *gin.Context) {
		c.Header("cache-control", "no-store")
		c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte("window.__API_BASE__='"+base+"'\n"))
	})
	if cfg.UIDir != "" {
		fs := http.FileServer(http.Dir(cfg.UIDir))
		r.NoRoute(gin.WrapH(fs))
	}
	return r
}
