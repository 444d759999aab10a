package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	backendRedis = "redis"

	// DefaultRedisPrefix namespaces every key the agent writes.
	DefaultRedisPrefix = "agent:"
)

// RedisStorage keeps generations in Redis.
//
// Layout:
//
//	<prefix>caches        SET  of generation names
//	<prefix>cache:<name>  HASH key.String() -> JSON Entry
type RedisStorage struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStorage creates a storage backed by redisClient.
func NewRedisStorage(redisClient *redis.Client, prefix string) *RedisStorage {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStorage{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisStorage) namesKey() string {
	return s.prefix + "caches"
}

func (s *RedisStorage) cacheKey(name string) string {
	return s.prefix + "cache:" + name
}

// Open returns the named generation, registering its name if absent.
func (s *RedisStorage) Open(ctx context.Context, name string) (Cache, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	if err := s.redis.SAdd(ctx, s.namesKey(), name).Err(); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "open").Inc()
		return nil, fmt.Errorf("redis sadd: %w", err)
	}

	return &redisCache{storage: s, name: name}, nil
}

// Has reports whether the named generation exists.
func (s *RedisStorage) Has(ctx context.Context, name string) (bool, error) {
	ok, err := s.redis.SIsMember(ctx, s.namesKey(), name).Result()
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "keys").Inc()
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

// Keys lists all generation names in sorted order.
func (s *RedisStorage) Keys(ctx context.Context) ([]string, error) {
	names, err := s.redis.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "keys").Inc()
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the generation name and its hash in one transaction.
func (s *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, s.namesKey(), name)
		pipe.Del(ctx, s.cacheKey(name))
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "delete").Inc()
		return false, fmt.Errorf("redis delete cache %q: %w", name, err)
	}
	return removed.Val() > 0, nil
}

// Ping checks the Redis connection.
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

type redisCache struct {
	storage *RedisStorage
	name    string
}

func (c *redisCache) Name() string {
	return c.name
}

func (c *redisCache) Match(ctx context.Context, key Key) (*Entry, error) {
	data, err := c.storage.redis.HGet(ctx, c.storage.cacheKey(c.name), key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues(backendRedis).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(backendRedis, "match").Inc()
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "match").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues(backendRedis).Inc()
	return &entry, nil
}

func (c *redisCache) Put(ctx context.Context, key Key, entry *Entry) error {
	if err := validateRecord(key, entry); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := c.storage.redis.HSet(ctx, c.storage.cacheKey(c.name), key.String(), data).Err(); err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return fmt.Errorf("redis hset: %w", err)
	}

	EntriesWritten.WithLabelValues(backendRedis).Inc()
	return nil
}

// PutAll writes every record inside MULTI/EXEC.
func (c *redisCache) PutAll(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(records)*2)
	for i, rec := range records {
		if err := validateRecord(rec.Key, rec.Entry); err != nil {
			CacheErrors.WithLabelValues(backendRedis, "put").Inc()
			return fmt.Errorf("record %d (%s): %w", i, rec.Key, err)
		}
		data, err := json.Marshal(rec.Entry)
		if err != nil {
			CacheErrors.WithLabelValues(backendRedis, "put").Inc()
			return fmt.Errorf("marshal cache entry %s: %w", rec.Key, err)
		}
		values = append(values, rec.Key.String(), data)
	}

	_, err := c.storage.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, c.storage.namesKey(), c.name)
		pipe.HSet(ctx, c.storage.cacheKey(c.name), values...)
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "put").Inc()
		return fmt.Errorf("redis put all: %w", err)
	}

	EntriesWritten.WithLabelValues(backendRedis).Add(float64(len(records)))
	return nil
}

func (c *redisCache) Len(ctx context.Context) (int, error) {
	n, err := c.storage.redis.HLen(ctx, c.storage.cacheKey(c.name)).Result()
	if err != nil {
		CacheErrors.WithLabelValues(backendRedis, "match").Inc()
		return 0, fmt.Errorf("redis hlen: %w", err)
	}
	return int(n), nil
}
