// Package redis stores the session state under one key of a local Redis.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/PabloGalante/engigen-agent/internal/domain"
)

// BlobStore maps blob keys to Redis string keys, with an optional prefix.
type BlobStore struct {
	client *redis.Client
	prefix string
}

// NewBlobStore connects to redisURL and checks the connection.
func NewBlobStore(ctx context.Context, redisURL, prefix string) (*BlobStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis store: parse url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis store: ping: %w", err)
	}

	return &BlobStore{client: client, prefix: prefix}, nil
}

// Close closes the Redis connection.
func (s *BlobStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *BlobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *BlobStore) redisKey(key string) string {
	return s.prefix + key
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, fmt.Errorf("redis store: get %s: %w", key, err)
	}
	return data, nil
}

// Put stores data without expiry; the state lives until cleared.
func (s *BlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.redisKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis store: set %s: %w", key, err)
	}
	return nil
}
