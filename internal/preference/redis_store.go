package preference

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// DefaultNamespace prefixes the Redis key when none is configured.
const DefaultNamespace = "smart-ingredients"

// RedisStore keeps the preference under a single namespaced Redis key.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisStore returns a store using client. An empty namespace falls back
// to DefaultNamespace.
func NewRedisStore(client redis.Cmdable, namespace string) *RedisStore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &RedisStore{client: client, key: namespace + ":" + Key}
}

// Key returns the Redis key in use.
func (s *RedisStore) Key() string {
	return s.key
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	value, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", storageError("load", err)
	}
	return value, nil
}

func (s *RedisStore) Save(ctx context.Context, value string) error {
	return storageError("save", s.client.Set(ctx, s.key, value, 0).Err())
}
