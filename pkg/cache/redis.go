package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key written by the store, e.g. "ridecache:".
	Prefix string
}

// RedisStore is a Store shared by several service instances through Redis.
// Each dataset key maps to two Redis keys: one with the JSON payload and one
// with the fetch metadata. Invalidation deletes only the metadata key, which
// mirrors the in-memory behaviour of keeping the payload for stale reads.
type RedisStore[V any] struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	prefix      string
	clock       Clock
}

type redisMeta struct {
	FetchedAt int64 `json:"fetchedAt"` // unix nanos
	TTL       int64 `json:"ttl"`       // nanos
}

// NewRedisStore creates and connects a new RedisStore.
// It pings the Redis server to ensure connectivity before returning.
func NewRedisStore[V any](ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisStore[V], error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Str("prefix", cfg.Prefix).Msg("Successfully connected to Redis.")

	return &RedisStore[V]{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisStore").Logger(),
		prefix:      cfg.Prefix,
		clock:       SystemClock,
	}, nil
}

func (s *RedisStore[V]) payloadKey(key string) string { return s.prefix + key + ":payload" }
func (s *RedisStore[V]) metaKey(key string) string    { return s.prefix + key + ":meta" }
func (s *RedisStore[V]) versionKey(key string) string { return s.prefix + key + ":version" }

// Get returns the entry for key. A missing payload is reported as absent; a
// present payload without metadata is a stale (invalidated) entry.
func (s *RedisStore[V]) Get(ctx context.Context, key string) (Entry[V], bool, error) {
	var entry Entry[V]

	vals, err := s.redisClient.MGet(ctx, s.payloadKey(key), s.metaKey(key), s.versionKey(key)).Result()
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Unexpected Redis error during get.")
		return entry, false, fmt.Errorf("redis get for %s: %w", key, err)
	}

	rawPayload, ok := vals[0].(string)
	if !ok {
		return entry, false, nil
	}
	if err := json.Unmarshal([]byte(rawPayload), &entry.Payload); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to unmarshal cached payload.")
		return entry, false, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	entry.Key = key

	if rawMeta, ok := vals[1].(string); ok {
		var meta redisMeta
		if err := json.Unmarshal([]byte(rawMeta), &meta); err != nil {
			return entry, false, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		entry.FetchedAt = time.Unix(0, meta.FetchedAt)
		entry.TTL = time.Duration(meta.TTL)
	}
	if rawVersion, ok := vals[2].(string); ok {
		v, err := strconv.ParseUint(rawVersion, 10, 64)
		if err != nil {
			return entry, false, fmt.Errorf("failed to parse version: %w", err)
		}
		entry.Version = v
	}

	s.logger.Debug().Str("key", key).Msg("Redis cache hit.")
	return entry, true, nil
}

// Put writes payload and metadata in one transaction.
func (s *RedisStore[V]) Put(ctx context.Context, key string, payload V, ttl time.Duration) (Entry[V], error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to marshal data for caching.")
		return Entry[V]{}, fmt.Errorf("failed to marshal data: %w", err)
	}

	now := s.clock.Now()
	meta, err := json.Marshal(redisMeta{FetchedAt: now.UnixNano(), TTL: int64(ttl)})
	if err != nil {
		return Entry[V]{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var version *redis.IntCmd
	_, err = s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		version = pipe.Incr(ctx, s.versionKey(key))
		pipe.Set(ctx, s.payloadKey(key), jsonData, 0)
		pipe.Set(ctx, s.metaKey(key), meta, 0)
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to set data in Redis cache.")
		return Entry[V]{}, fmt.Errorf("failed to set in redis: %w", err)
	}

	s.logger.Debug().Str("key", key).Msg("Successfully stored data in Redis cache.")
	return Entry[V]{
		Key:       key,
		Payload:   payload,
		FetchedAt: now,
		TTL:       ttl,
		Version:   uint64(version.Val()),
	}, nil
}

// Invalidate deletes the metadata key so the payload reads as stale.
func (s *RedisStore[V]) Invalidate(ctx context.Context, key string) error {
	if err := s.redisClient.Del(ctx, s.metaKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", key, err)
	}
	return nil
}

// IsFresh reports whether key holds an entry younger than its TTL.
func (s *RedisStore[V]) IsFresh(ctx context.Context, key string) (bool, error) {
	raw, err := s.redisClient.Get(ctx, s.metaKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get metadata for %s: %w", key, err)
	}
	var meta redisMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return false, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	entry := Entry[V]{FetchedAt: time.Unix(0, meta.FetchedAt), TTL: time.Duration(meta.TTL)}
	return entry.FreshAt(s.clock.Now()), nil
}

// Clear removes every payload and metadata key under the store's prefix.
// Version counters are left in place.
func (s *RedisStore[V]) Clear(ctx context.Context) error {
	var removed int
	for _, pattern := range []string{s.prefix + "*:payload", s.prefix + "*:meta"} {
		iter := s.redisClient.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := s.redisClient.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("failed to delete %s: %w", iter.Val(), err)
			}
			removed++
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to scan %s: %w", pattern, err)
		}
	}
	s.logger.Info().Int("keys", removed).Msg("Redis store cleared.")
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore[V]) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}
