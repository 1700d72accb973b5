package cachestore

import (
	"context"
	"os"
	"strconv"

	"darkstore-coverage/internal/logger"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Redis：快照存放在单个字符串键中
type Redis struct {
	rdb *redis.Client
	key string
}

func NewRedis(rdb *redis.Client, key string) *Redis { return &Redis{rdb: rdb, key: key} }

func (r *Redis) Load(ctx context.Context) ([]byte, error) {
	b, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get cache")
	}
	return b, nil
}

func (r *Redis) Save(ctx context.Context, blob []byte) error {
	return errors.Wrap(r.rdb.Set(ctx, r.key, blob, 0).Err(), "redis set cache")
}

func (r *Redis) Clear(ctx context.Context) error {
	return errors.Wrap(r.rdb.Del(ctx, r.key).Err(), "redis del cache")
}

func (r *Redis) Close() error { return r.rdb.Close() }

// OpenRedisFromEnv：从 REDIS_HOST / REDIS_PORT / REDIS_PASS / REDIS_DB 打开客户端
// 约束：REDIS_DB 解析失败时回退到 0
func OpenRedisFromEnv() *redis.Client {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	addr := host + ":" + port
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			db = n
		}
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASS"), DB: db})
}
