package cachestore

import (
	"context"
	"database/sql"
	"os"
	"strconv"

	"darkstore-coverage/internal/logger"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// Postgres：快照按名称存放在 isochrone_cache_snapshots 表中
type Postgres struct {
	db   *sql.DB
	name string
}

// NewPostgres：name 为快照行名，通常取缓存版本号
func NewPostgres(db *sql.DB, name string) *Postgres { return &Postgres{db: db, name: name} }

// EnsureSchema：首次运行创建快照表
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS isochrone_cache_snapshots (
            name TEXT PRIMARY KEY,
            blob BYTEA NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}

func (p *Postgres) Load(ctx context.Context) ([]byte, error) {
	var b []byte
	err := p.db.QueryRowContext(ctx, `SELECT blob FROM isochrone_cache_snapshots WHERE name = $1`, p.name).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select cache snapshot")
	}
	return b, nil
}

func (p *Postgres) Save(ctx context.Context, blob []byte) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO isochrone_cache_snapshots(name, blob, updated_at)
        VALUES($1, $2, now())
        ON CONFLICT (name) DO UPDATE SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at`, p.name, blob)
	return errors.Wrap(err, "upsert cache snapshot")
}

func (p *Postgres) Clear(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM isochrone_cache_snapshots WHERE name = $1`, p.name)
	return errors.Wrap(err, "delete cache snapshot")
}

func (p *Postgres) Close() error { return p.db.Close() }

// BuildPostgresDSNFromEnv：由 PG_* 环境变量拼装 DSN；PG_DSN 非空时直接使用
func BuildPostgresDSNFromEnv() string {
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		return dsn
	}
	host := envOr("PG_HOST", "localhost")
	port := envOr("PG_PORT", "5432")
	user := envOr("PG_USER", "postgres")
	pass := os.Getenv("PG_PASSWORD")
	db := envOr("PG_DB", "darkstore")
	ssl := envOr("PG_SSLMODE", "disable")
	dsn := "postgres://" + user
	if pass != "" {
		dsn += ":" + pass
	}
	dsn += "@" + host + ":" + port + "/" + db + "?sslmode=" + ssl
	return dsn
}

// OpenPostgresFromEnv：打开连接池；快照读写量小，默认连接数较低
func OpenPostgresFromEnv() (*sql.DB, error) {
	db, err := sql.Open("postgres", BuildPostgresDSNFromEnv())
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	maxOpen := 4
	if v := os.Getenv("PG_MAX_OPEN_CONNS"); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			maxOpen = n
		}
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	return db, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
