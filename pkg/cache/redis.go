package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisKey is the hash holding all cached results.
	DefaultRedisKey = "lrn:cache"

	// redisSaveChunk bounds the number of fields per HSET.
	redisSaveChunk = 1000
)

// RedisStore keeps the cache in a single Redis hash.
type RedisStore struct {
	redis *redis.Client
	key   string
}

// NewRedisStore creates a store using the hash at key.
func NewRedisStore(redisClient *redis.Client, key string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{
		redis: redisClient,
		key:   key,
	}
}

// Key returns the hash key.
func (s *RedisStore) Key() string {
	return s.key
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (map[string]string, error) {
	entries, err := s.redis.HGetAll(ctx, s.key).Result()
	if err != nil {
		CacheErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	CacheEntries.WithLabelValues("redis").Set(float64(len(entries)))
	return entries, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := s.redis.Pipeline()
	fields := make([]interface{}, 0, 2*redisSaveChunk)
	for number, result := range entries {
		fields = append(fields, number, result)
		if len(fields) == 2*redisSaveChunk {
			pipe.HSet(ctx, s.key, fields...)
			fields = make([]interface{}, 0, 2*redisSaveChunk)
		}
	}
	if len(fields) > 0 {
		pipe.HSet(ctx, s.key, fields...)
	}
	lenCmd := pipe.HLen(ctx, s.key)

	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("redis hset: %w", err)
	}

	CacheEntries.WithLabelValues("redis").Set(float64(lenCmd.Val()))
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
