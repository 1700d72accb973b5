// 包 isochrone：等时圈获取、持久化缓存与分批生成
package isochrone

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"darkstore-coverage/internal/cachestore"
	"darkstore-coverage/internal/geo"
	"darkstore-coverage/internal/geoapify"
	"darkstore-coverage/internal/logger"
	"darkstore-coverage/internal/metrics"
	"darkstore-coverage/internal/refdata"

	"golang.org/x/time/rate"
)

// Isoliner：等时线数据源，*geoapify.Client 即为实现
type Isoliner interface {
	Isoline(ctx context.Context, r geoapify.IsolineRequest) (json.RawMessage, error)
}

// Options：缓存版本与分批参数
type Options struct {
	Version     string
	ChunkSize   int
	Concurrency int
	Delay       time.Duration
	// RatePerSec 为 0 时不限速
	RatePerSec float64
}

// Query：单点查询；City 为空时按坐标推断所在城市（仅影响骑行车速）
type Query struct {
	Lat     float64
	Lng     float64
	Minutes int
	Mode    string
	City    string
}

// Isochrone：单点结果
// 约束：Fallback 为真时 Polygon 为近似圆，且不会进入缓存
type Isochrone struct {
	Polygon  json.RawMessage `json:"isochrone"`
	Fallback bool            `json:"fallback"`
	Cached   bool            `json:"cached"`
}

// 文档注释：等时圈提供者
// 背景：内存缓存是持久化快照的镜像；每次写入都把整份快照交给后端覆盖保存。
// 约束：可并发使用；同一规范化键在缓存生命周期内始终返回同一份数据。
type Provider struct {
	api     Isoliner
	ref     *refdata.Data
	store   cachestore.Store
	opts    Options
	limiter *rate.Limiter

	mu    sync.RWMutex
	cache map[string]json.RawMessage

	// 串行化快照写入，保证后写的快照包含先写的条目
	persistMu sync.Mutex
}

// New：创建提供者并加载当前版本的快照；快照读取或解析失败时以空缓存启动
func New(ctx context.Context, api Isoliner, ref *refdata.Data, store cachestore.Store, opts Options) *Provider {
	if opts.Version == "" {
		opts.Version = "v2"
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 5
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = opts.ChunkSize
	}
	if store == nil {
		store = cachestore.NewMemory()
	}
	p := &Provider{
		api:   api,
		ref:   ref,
		store: store,
		opts:  opts,
		cache: map[string]json.RawMessage{},
	}
	if opts.RatePerSec > 0 {
		burst := int(math.Ceil(opts.RatePerSec))
		p.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	p.load(ctx)
	return p
}

func (p *Provider) load(ctx context.Context) {
	l := logger.L()
	blob, err := p.store.Load(ctx)
	if err != nil {
		l.Warn("isochrone_cache_load_error", "err", err)
		return
	}
	if len(blob) == 0 {
		return
	}
	var snap map[string]map[string]json.RawMessage
	if err := json.Unmarshal(blob, &snap); err != nil {
		l.Warn("isochrone_cache_decode_error", "err", err)
		return
	}
	entries, ok := snap[p.opts.Version]
	if !ok {
		l.Info("isochrone_cache_version_mismatch", "want", p.opts.Version)
		return
	}
	p.mu.Lock()
	for k, v := range entries {
		p.cache[k] = v
	}
	p.mu.Unlock()
	l.Info("isochrone_cache_loaded", "version", p.opts.Version, "entries", len(entries))
}

// Len：缓存条目数
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}

// 文档注释：获取单点等时圈
// 背景：命中缓存直接返回；否则请求外部服务，成功后写入缓存并持久化整份快照。
// 约束：外部请求失败（网络错误、非 2xx、响应不含多边形）时返回近似圆而非错误；
// 仅当查询本身非法（时长非正、出行方式未知、坐标非有限值）时返回错误。
func (p *Provider) Fetch(ctx context.Context, q Query) (Isochrone, error) {
	mode, err := NormalizeMode(q.Mode)
	if err != nil {
		return Isochrone{}, err
	}
	if q.Minutes <= 0 {
		return Isochrone{}, fmt.Errorf("minutes must be positive, got %d", q.Minutes)
	}
	if !finite(q.Lat) || !finite(q.Lng) {
		return Isochrone{}, fmt.Errorf("invalid coordinate %v,%v", q.Lat, q.Lng)
	}
	lat, lng := geo.Round(q.Lat, 6), geo.Round(q.Lng, 6)
	key := Key(lat, lng, q.Minutes, mode)

	p.mu.RLock()
	raw, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		metrics.CacheHitsTotal.Inc()
		return Isochrone{Polygon: raw, Cached: true}, nil
	}
	metrics.CacheMissesTotal.Inc()

	raw, err = p.request(ctx, lat, lng, q.Minutes, mode, q.City)
	if err != nil {
		logger.L().Warn("isoline_fallback", "lat", lat, "lng", lng, "minutes", q.Minutes, "mode", mode, "err", err)
		metrics.FallbackTotal.Inc()
		return p.fallback(q.Lat, q.Lng, q.Minutes)
	}

	p.mu.Lock()
	p.cache[key] = raw
	p.mu.Unlock()
	p.persist(context.WithoutCancel(ctx))
	return Isochrone{Polygon: raw}, nil
}

func (p *Provider) request(ctx context.Context, lat, lng float64, minutes int, mode, city string) (json.RawMessage, error) {
	if p.api == nil {
		return nil, geoapify.ErrMissingKey
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req := geoapify.IsolineRequest{Lat: lat, Lng: lng, Type: "time", Mode: "walk", Range: minutes * 60}
	if mode == ModeBike {
		if city == "" && p.ref != nil {
			city = p.ref.CityFor(lat, lng).Key
		}
		speed := 20.0
		if p.ref != nil {
			speed = p.ref.SpeedFor(city, lat, lng)
		}
		req = geoapify.IsolineRequest{Lat: lat, Lng: lng, Type: "distance", Mode: "motorcycle", Range: DistanceMeters(speed, minutes)}
	}
	raw, err := p.api.Isoline(ctx, req)
	if err != nil {
		return nil, err
	}
	fc, err := geo.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode isoline: %w", err)
	}
	if !fc.Valid() {
		return nil, fmt.Errorf("isoline response has no polygon")
	}
	return raw, nil
}

func (p *Provider) fallback(lat, lng float64, minutes int) (Isochrone, error) {
	b, err := json.Marshal(geo.FallbackCircle(lat, lng, minutes))
	if err != nil {
		return Isochrone{}, fmt.Errorf("encode fallback circle: %w", err)
	}
	return Isochrone{Polygon: b, Fallback: true}, nil
}

// persist：整份快照覆盖写入；失败只记录，不影响本次返回
func (p *Provider) persist(ctx context.Context) {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	p.mu.RLock()
	blob, err := json.Marshal(map[string]map[string]json.RawMessage{p.opts.Version: p.cache})
	p.mu.RUnlock()
	if err == nil {
		err = p.store.Save(ctx, blob)
	}
	if err != nil {
		metrics.CachePersistFailTotal.Inc()
		logger.L().Warn("isochrone_cache_persist_error", "err", err)
	}
}

// ClearCache：清空内存缓存与持久化副本
func (p *Provider) ClearCache(ctx context.Context) error {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	p.mu.Lock()
	n := len(p.cache)
	p.cache = map[string]json.RawMessage{}
	p.mu.Unlock()
	if err := p.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear durable cache: %w", err)
	}
	logger.L().Info("isochrone_cache_cleared", "entries", n)
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
