package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the optional shared-cache connection settings.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisBackend 可选 L2 共享缓存
// 任何 Redis 故障都按未命中/空操作处理并降级为仅本地，绝不让请求失败
type RedisBackend struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

const redisOpTimeout = 2 * time.Second

// NewRedisBackend connects to Redis. Connection failure is reported but
// the backend is still returned usable: every op degrades per-call.
func NewRedisBackend(cfg RedisConfig, logger *slog.Logger) *RedisBackend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "coopchat:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis 连接失败，L2 按未命中降级", "addr", cfg.Addr, "error", err)
	} else {
		logger.Info("Redis L2 缓存已连接", "addr", cfg.Addr)
	}

	return &RedisBackend{client: client, prefix: cfg.KeyPrefix, logger: logger}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Debug("Redis 读取失败", "key", key, "error", err)
		}
		return nil, false
	}
	return value, true
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		r.logger.Debug("Redis 写入失败", "key", key, "error", err)
	}
}

func (r *RedisBackend) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		r.logger.Debug("Redis 删除失败", "key", key, "error", err)
	}
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
