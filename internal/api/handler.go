// 包 api：门店覆盖分析的 HTTP 接口（gin）
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"darkstore-coverage/internal/coverage"
	"darkstore-coverage/internal/darkstore"
	"darkstore-coverage/internal/geoapify"
	"darkstore-coverage/internal/isochrone"
	"darkstore-coverage/internal/kml"
	"darkstore-coverage/internal/logger"
	"darkstore-coverage/internal/refdata"

	"github.com/gin-gonic/gin"
)

const defaultMinutes = 10

// Geocoder：地址检索，*geoapify.Client 即为实现
type Geocoder interface {
	Geocode(ctx context.Context, text string, biasLat, biasLng float64) (*geoapify.Place, error)
}

// Handler：API 处理器
// 约束：Online 为假（未配置外部服务密钥）时，依赖外部服务的接口返回 503，其余接口照常工作
type Handler struct {
	ref       *refdata.Data
	stores    []darkstore.Store
	provider  *isochrone.Provider
	geocoder  Geocoder
	locator   Locator
	online    bool
	zoneLimit int
}

// Options：Handler 依赖
type Options struct {
	Ref       *refdata.Data
	Stores    []darkstore.Store
	Provider  *isochrone.Provider
	Geocoder  Geocoder
	Locator   Locator
	Online    bool
	ZoneLimit int
}

// NewHandler 创建处理器
func NewHandler(o Options) *Handler {
	if o.ZoneLimit <= 0 {
		o.ZoneLimit = 45
	}
	return &Handler{
		ref:       o.Ref,
		stores:    o.Stores,
		provider:  o.Provider,
		geocoder:  o.Geocoder,
		locator:   o.Locator,
		online:    o.Online,
		zoneLimit: o.ZoneLimit,
	}
}

func fail(c *gin.Context, status int, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *Handler) requireOnline(c *gin.Context) bool {
	if !h.online {
		fail(c, http.StatusServiceUnavailable, "isoline service not configured", nil)
		return false
	}
	return true
}

// city：空键返回第一个城市；未知键返回 false
func (h *Handler) city(key string) (refdata.City, bool) {
	if key == "" {
		return h.ref.Cities[0], true
	}
	return h.ref.City(key)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// filtered：按城市与品牌筛选；city 为空时不按城市过滤
func (h *Handler) filtered(cityKey string, brands []string) ([]darkstore.Store, bool) {
	stores := h.stores
	if cityKey != "" {
		c, ok := h.ref.City(cityKey)
		if !ok {
			return nil, false
		}
		stores = darkstore.InCity(stores, c)
	}
	return darkstore.WithBrands(stores, brands), true
}

// Cities 城市列表
// GET /v1/cities
func (h *Handler) Cities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cities": h.ref.Cities})
}

// Brands 品牌列表
// GET /v1/brands
func (h *Handler) Brands(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"brands": h.ref.Brands})
}

// Stores 门店列表
// GET /v1/stores?city=&brands=a,b
func (h *Handler) Stores(c *gin.Context) {
	stores, ok := h.filtered(c.Query("city"), splitList(c.Query("brands")))
	if !ok {
		fail(c, http.StatusNotFound, "unknown city", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":        len(stores),
		"stores":       stores,
		"brand_counts": darkstore.CountBrands(stores),
	})
}

// StoresKML 导出门店 KML
// GET /v1/stores.kml?city=&brands=
func (h *Handler) StoresKML(c *gin.Context) {
	stores, ok := h.filtered(c.Query("city"), splitList(c.Query("brands")))
	if !ok {
		fail(c, http.StatusNotFound, "unknown city", nil)
		return
	}
	b, err := kml.Encode(stores)
	if err != nil {
		fail(c, http.StatusInternalServerError, "encode failed", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="dark_stores.kml"`)
	c.Data(http.StatusOK, "application/vnd.google-earth.kml+xml", b)
}

// DefaultCity 按访问者 IP 推断默认城市
// GET /v1/default-city
func (h *Handler) DefaultCity(c *gin.Context) {
	if h.locator != nil {
		if lat, lng, ok := h.locator.Locate(visitorIP(c.Request)); ok {
			c.JSON(http.StatusOK, gin.H{"city": h.ref.CityFor(lat, lng).Key, "source": "geoip"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"city": h.ref.Cities[0].Key, "source": "default"})
}

func parseMinutes(s string) (int, bool) {
	if s == "" {
		return defaultMinutes, true
	}
	n, err := strconv.Atoi(s)
	return n, err == nil && n > 0 && n <= 120
}

// Isochrone 单点等时圈
// GET /v1/isochrone?lat=&lng=&minutes=&mode=&city=
func (h *Handler) Isochrone(c *gin.Context) {
	if !h.requireOnline(c) {
		return
	}
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		fail(c, http.StatusBadRequest, "invalid coordinate", nil)
		return
	}
	minutes, ok := parseMinutes(c.Query("minutes"))
	if !ok {
		fail(c, http.StatusBadRequest, "invalid minutes", nil)
		return
	}
	iso, err := h.provider.Fetch(c.Request.Context(), isochrone.Query{
		Lat: lat, Lng: lng, Minutes: minutes, Mode: c.Query("mode"), City: c.Query("city"),
	})
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	c.JSON(http.StatusOK, iso)
}

// LatLng 请求中的坐标
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ZonesRequest 覆盖区域生成请求
type ZonesRequest struct {
	City    string   `json:"city" binding:"required"`
	Brands  []string `json:"brands"`
	Minutes int      `json:"minutes" binding:"omitempty,min=1,max=120"`
	Mode    string   `json:"mode"`
	Center  *LatLng  `json:"center"`
	Limit   int      `json:"limit" binding:"omitempty,min=1"`
}

// Zones 生成城市内距中心最近门店的等时圈及统计
// POST /v1/zones
func (h *Handler) Zones(c *gin.Context) {
	if !h.requireOnline(c) {
		return
	}
	var req ZonesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	city, ok := h.ref.City(req.City)
	if !ok {
		fail(c, http.StatusNotFound, "unknown city", nil)
		return
	}
	mode, err := isochrone.NormalizeMode(req.Mode)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid mode", err)
		return
	}
	if req.Minutes == 0 {
		req.Minutes = defaultMinutes
	}
	if req.Limit == 0 || req.Limit > h.zoneLimit {
		req.Limit = h.zoneLimit
	}
	center := LatLng{Lat: city.Center.Lat, Lng: city.Center.Lng}
	if req.Center != nil {
		center = *req.Center
	}
	stores := darkstore.WithBrands(darkstore.InCity(h.stores, city), req.Brands)
	candidates := coverage.ZoneCandidates(stores, center.Lat, center.Lng, req.Limit)
	l := logger.L().With("city", city.Key, "minutes", req.Minutes, "mode", mode)
	results, err := h.provider.BatchFetch(c.Request.Context(), candidates, req.Minutes, mode, func(pct int) {
		l.Debug("zones_progress", "pct", pct)
	})
	if err != nil {
		fail(c, http.StatusServiceUnavailable, "generation interrupted", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"city":         city.Key,
		"minutes":      req.Minutes,
		"mode":         mode,
		"total":        len(stores),
		"results":      results,
		"redundancy":   coverage.Redundancy(stores, len(results)),
		"brand_counts": darkstore.CountBrands(stores),
	})
}

// AccessibilityRequest 位置可达性请求
type AccessibilityRequest struct {
	Lat     *float64 `json:"lat" binding:"required"`
	Lng     *float64 `json:"lng" binding:"required"`
	City    string   `json:"city"`
	Brands  []string `json:"brands"`
	Minutes int      `json:"minutes" binding:"omitempty,min=1,max=120"`
	Mode    string   `json:"mode"`
}

// Accessibility 检查附近门店能否到达某位置
// POST /v1/accessibility
func (h *Handler) Accessibility(c *gin.Context) {
	if !h.requireOnline(c) {
		return
	}
	var req AccessibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	lat, lng := *req.Lat, *req.Lng
	city := h.ref.CityFor(lat, lng)
	if req.City != "" {
		var ok bool
		if city, ok = h.ref.City(req.City); !ok {
			fail(c, http.StatusNotFound, "unknown city", nil)
			return
		}
	}
	mode, err := isochrone.NormalizeMode(req.Mode)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid mode", err)
		return
	}
	if req.Minutes == 0 {
		req.Minutes = defaultMinutes
	}
	stores := darkstore.WithBrands(darkstore.InCity(h.stores, city), req.Brands)
	rep, err := coverage.Accessibility(c.Request.Context(), h.provider, coverage.NewIndex(stores), lat, lng, req.Minutes, mode, city.Key)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, "accessibility interrupted", err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// Geocode 地址检索，以城市中心为位置偏好
// GET /v1/geocode?text=&city=
func (h *Handler) Geocode(c *gin.Context) {
	if !h.requireOnline(c) {
		return
	}
	if h.geocoder == nil {
		fail(c, http.StatusServiceUnavailable, "geocoder not configured", nil)
		return
	}
	text := strings.TrimSpace(c.Query("text"))
	if text == "" {
		fail(c, http.StatusBadRequest, "missing text", nil)
		return
	}
	city, ok := h.city(c.Query("city"))
	if !ok {
		fail(c, http.StatusNotFound, "unknown city", nil)
		return
	}
	p, err := h.geocoder.Geocode(c.Request.Context(), text, city.Center.Lat, city.Center.Lng)
	if errors.Is(err, geoapify.ErrNoResult) {
		fail(c, http.StatusNotFound, "no result", nil)
		return
	}
	if err != nil {
		logger.L().Warn("geocode_error", "err", err)
		fail(c, http.StatusBadGateway, "geocode failed", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ClearCache 清空等时圈缓存
// DELETE /v1/cache
func (h *Handler) ClearCache(c *gin.Context) {
	if err := h.provider.ClearCache(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, "clear failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Status 服务状态
// GET /v1/status
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online":        h.online,
		"stores":        len(h.stores),
		"cache_entries": h.provider.Len(),
	})
}
