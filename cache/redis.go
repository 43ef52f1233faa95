package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists snapshots in a single Redis key, so cache contents
// survive process restarts and can be shared across replicas.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithSnapshotKey overrides the Redis key. Defaults to
// "callops:cache:snapshot".
func WithSnapshotKey(key string) RedisStoreOption {
	return func(s *RedisStore) { s.key = key }
}

// WithSnapshotTTL expires stored snapshots after d. Zero keeps them
// until overwritten.
func WithSnapshotTTL(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.ttl = d }
}

// NewRedisStore creates a snapshot store backed by client. The server is
// pinged once so a broken connection fails here rather than on the first
// save.
func NewRedisStore(ctx context.Context, client *redis.Client, opts ...RedisStoreOption) (*RedisStore, error) {
	s := &RedisStore{
		client: client,
		key:    "callops:cache:snapshot",
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	return s, nil
}

// Save stores the snapshot under the configured key.
func (s *RedisStore) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache: save snapshot to redis: %w", err)
	}
	return nil
}

// Load fetches the last saved snapshot.
func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("cache: load snapshot from redis: %w", err)
	}
	return data, nil
}

var _ Store = (*RedisStore)(nil)
