package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmptyAddress is returned when the redis backend has no address.
var ErrEmptyAddress = errors.New("redis address is required")

const (
	redisConnectTimeout = 5 * time.Second
	redisScanBatch      = 500

	fieldValue     = "value"
	fieldFetchedAt = "fetched_at"
	fieldKey       = "key"
)

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisStore keeps each entry in a hash at <prefix><hash>. It lets several
// regcount processes share one cache.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects and pings the server.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) redisKey(key Key) string {
	return s.prefix + string(key.Kind) + ":" + key.Hash()
}

func (s *RedisStore) Get(ctx context.Context, key Key) (Entry, error) {
	vals, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("redis get: %w", err)
	}
	if len(vals) == 0 || vals[fieldKey] != key.String() {
		return Entry{}, ErrNotFound
	}

	fetchedAt, _ := strconv.ParseInt(vals[fieldFetchedAt], 10, 64)
	return Entry{
		Key:       vals[fieldKey],
		Value:     []byte(vals[fieldValue]),
		FetchedAt: time.Unix(0, fetchedAt).UTC(),
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, key Key, entry Entry) error {
	rk := s.redisKey(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, rk,
			fieldKey, key.String(),
			fieldValue, entry.Value,
			fieldFetchedAt, entry.FetchedAt.UnixNano(),
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, rk, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// Clear deletes every key under the prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", redisScanBatch).Iterator()
	batch := make([]string, 0, redisScanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == redisScanBatch {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis clear: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis clear: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
