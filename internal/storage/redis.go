package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisKV keeps every parent path in one hash whose fields are the keys.
type RedisKV struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisKV(ctx context.Context, config RedisConfig, logger *zap.Logger) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	return NewRedisKVFromClient(client, config.KeyPrefix, logger), nil
}

func NewRedisKVFromClient(client *redis.Client, prefix string, logger *zap.Logger) *RedisKV {
	return &RedisKV{
		client: client,
		prefix: prefix,
		logger: logger.Named("redis_kv"),
	}
}

func (s *RedisKV) hash(parent string) string {
	return s.prefix + parent
}

func (s *RedisKV) Get(ctx context.Context, parent, key string) ([]byte, error) {
	value, err := s.client.HGet(ctx, s.hash(parent), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading %s/%s: %w", parent, key, err)
	}
	return value, nil
}

func (s *RedisKV) Set(ctx context.Context, parent, key string, value []byte) error {
	if err := s.client.HSet(ctx, s.hash(parent), key, value).Err(); err != nil {
		return fmt.Errorf("error writing %s/%s: %w", parent, key, err)
	}
	return nil
}

func (s *RedisKV) Delete(ctx context.Context, parent, key string) error {
	removed, err := s.client.HDel(ctx, s.hash(parent), key).Result()
	if err != nil {
		return fmt.Errorf("error deleting %s/%s: %w", parent, key, err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisKV) List(ctx context.Context, parent string) (map[string][]byte, error) {
	fields, err := s.client.HGetAll(ctx, s.hash(parent)).Result()
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", parent, err)
	}
	out := make(map[string][]byte, len(fields))
	for key, value := range fields {
		out[key] = []byte(value)
	}
	return out, nil
}

func (s *RedisKV) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisKV) Close() error {
	return s.client.Close()
}
