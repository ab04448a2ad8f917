package stores

import (
	"context"
	"errors"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the redis-backed identity cache backend, used when the
// deployment points REDIS_URL at a shared cache instead of per-process memory.
type RedisStore struct {
	client *redis.Client
	logger *logging.ChanneledLogger
}

// NewRedisStore connects to redis using a redis:// URL.
func NewRedisStore(redisURL string, logger *logging.ChanneledLogger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Cache().Info("Initializing redis identity cache store", "addr", opts.Addr)
	}
	return &RedisStore{client: client, logger: logger}, nil
}

// Get returns the value and whether the key was present and unexpired.
func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, err := rs.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if rs.logger != nil {
				rs.logger.Cache().Debug("Cache operation", "operation", "get", "backend", "redis", "key", key, "hit", false, "duration", time.Since(start))
			}
			return nil, false, nil
		}
		if rs.logger != nil {
			rs.logger.Cache().Error("Cache get failed", "backend", "redis", "key", key, "error", err.Error())
		}
		return nil, false, err
	}

	if rs.logger != nil {
		rs.logger.Cache().Debug("Cache operation", "operation", "get", "backend", "redis", "key", key, "hit", true, "duration", time.Since(start))
	}
	return value, true, nil
}

// Set stores a value with the given TTL.
func (rs *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := rs.client.Set(ctx, key, value, ttl).Err(); err != nil {
		if rs.logger != nil {
			rs.logger.Cache().Error("Cache set failed", "backend", "redis", "key", key, "error", err.Error())
		}
		return err
	}

	if rs.logger != nil {
		rs.logger.Cache().Debug("Cache operation", "operation", "set", "backend", "redis", "key", key, "ttl", ttl)
	}
	return nil
}

// Delete removes a key.
func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	return rs.client.Del(ctx, key).Err()
}

// Close releases the redis connection pool.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
