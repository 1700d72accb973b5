// 包 config：集中读取环境变量，服务与离线工具共用；.env 文件由 Load 先行加载
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config：进程配置快照
type Config struct {
	Addr       string
	APIBase    string
	UIDir      string
	AdminToken string

	KMLPath     string
	RefDataPath string
	GeoIPPath   string

	Geoapify GeoapifyConfig
	Cache    CacheConfig
	Batch    BatchConfig
	Bake     BakeConfig

	RateLimitEnabled bool
	RateLimitQPS     int
}

// GeoapifyConfig：等时圈服务接入参数；Key 为空时服务进入降级模式
type GeoapifyConfig struct {
	Key     string
	BaseURL string
	Timeout time.Duration
}

// Enabled：是否具备访问外部等时圈服务的凭据
func (g GeoapifyConfig) Enabled() bool { return g.Key != "" }

// CacheConfig：等时圈缓存的持久化后端
// 约束：Backend 取值 file|redis|postgres|memory，未知值按 file 处理
type CacheConfig struct {
	Backend  string
	FilePath string
	RedisKey string
	Version  string
}

// BatchConfig：批量生成参数
type BatchConfig struct {
	ChunkSize   int
	Concurrency int
	Delay       time.Duration
	RatePerSec  float64
	ZoneLimit   int
}

// BakeConfig：离线烘焙参数
type BakeConfig struct {
	OutDir       string
	Delay        time.Duration
	PollInterval time.Duration
}

// Load：加载 .env 后读取环境变量
// 背景：与入口约定 .env 与 data/env/.env 两处位置；文件缺失不视为错误
func Load() *Config {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	return FromEnv()
}

// FromEnv：仅读取当前进程环境变量
func FromEnv() *Config {
	return &Config{
		Addr:       getEnv("ADDR", ":8080"),
		APIBase:    getEnv("API_BASE", "/api"),
		UIDir:      getEnv("UI_DIST", filepath.Join("ui", "dist")),
		AdminToken: os.Getenv("ADMIN_TOKEN"),

		KMLPath:     getEnv("KML_PATH", filepath.Join("data", "dark_store.kml")),
		RefDataPath: os.Getenv("REFDATA_PATH"),
		GeoIPPath:   os.Getenv("GEOIP_DB"),

		Geoapify: GeoapifyConfig{
			Key:     firstEnv("GEOAPIFY_KEY", "VITE_GEOAPIFY_KEY"),
			BaseURL: getEnv("GEOAPIFY_BASE_URL", "https://api.geoapify.com"),
			Timeout: getDuration("ISOLINE_TIMEOUT", 15*time.Second),
		},
		Cache: CacheConfig{
			Backend:  strings.ToLower(getEnv("CACHE_BACKEND", "file")),
			FilePath: getEnv("CACHE_FILE", filepath.Join("data", "cache", "isochrones.json")),
			RedisKey: getEnv("CACHE_REDIS_KEY", "darkstore:isochrone_cache"),
			Version:  getEnv("CACHE_VERSION", "v2"),
		},
		Batch: BatchConfig{
			ChunkSize:   getInt("BATCH_SIZE", 5),
			Concurrency: getInt("BATCH_CONCURRENCY", 5),
			Delay:       getDuration("BATCH_DELAY", 200*time.Millisecond),
			RatePerSec:  getFloat("ISOLINE_RATE_PER_SEC", 0),
			ZoneLimit:   getInt("ZONE_LIMIT", 45),
		},
		Bake: BakeConfig{
			OutDir:       getEnv("BAKE_OUT_DIR", filepath.Join("data", "precomputed")),
			Delay:        getDuration("BAKE_DELAY", 500*time.Millisecond),
			PollInterval: getDuration("BAKE_POLL_INTERVAL", 5*time.Second),
		},

		RateLimitEnabled: os.Getenv("RATE_LIMIT_ENABLED") == "true",
		RateLimitQPS:     getInt("RATE_LIMIT_QPS", 50),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// 解析失败或非正数时回退默认值
func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return f
		}
	}
	return def
}

// 支持 "500ms" 形式，也接受纯数字（毫秒）
func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Millisecond
	}
	return def
}
