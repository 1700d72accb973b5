// 包 cachestore：等时圈缓存快照的持久化后端（文件 / Redis / PostgreSQL / 内存）
// 背景：缓存以单个版本化 JSON 快照整体读写，后端只负责字节的存取与清除。
package cachestore

import (
	"context"
	"strings"
	"sync"

	"darkstore-coverage/internal/config"
	"darkstore-coverage/internal/logger"

	"github.com/pkg/errors"
)

// Store：快照存取接口
// 约束：快照不存在时 Load 返回 (nil, nil)；Save 为整体覆盖，后写者生效。
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
	Clear(ctx context.Context) error
	Close() error
}

// 文档注释：按配置打开缓存后端
// 约束：Backend 未知时回退到文件后端；redis/postgres 连接参数来自 REDIS_* / PG_* 环境变量。
func Open(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	backend := strings.ToLower(cfg.Backend)
	switch backend {
	case "memory":
		return NewMemory(), nil
	case "redis":
		rdb := OpenRedisFromEnv()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, errors.Wrap(err, "ping redis")
		}
		return NewRedis(rdb, cfg.RedisKey), nil
	case "postgres":
		db, err := OpenPostgresFromEnv()
		if err != nil {
			return nil, err
		}
		if err := EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "ensure cache schema")
		}
		return NewPostgres(db, cfg.Version), nil
	case "file":
	default:
		logger.L().Warn("cache_backend_unknown", "backend", cfg.Backend, "fallback", "file")
	}
	return NewFile(cfg.FilePath), nil
}

// Memory：进程内后端，用于测试与无持久化部署
type Memory struct {
	mu   sync.Mutex
	blob []byte
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blob == nil {
		return nil, nil
	}
	return append([]byte(nil), m.blob...), nil
}

func (m *Memory) Save(_ context.Context, blob []byte) error {
	m.mu.Lock()
	m.blob = append([]byte(nil), blob...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.blob = nil
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
