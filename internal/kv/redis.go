package kv

import (
    "context"
    "errors"

    redis "github.com/redis/go-redis/v9"
)

// Redis implements Store over a Redis instance. Keys are stored without
// expiry; the dispatch core trims its own state.
type Redis struct {
    rdb    *redis.Client
    prefix string
}

// NewRedis connects using a redis:// URL.
func NewRedis(url, prefix string) (*Redis, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    return &Redis{rdb: redis.NewClient(opt), prefix: prefix}, nil
}

func (s *Redis) key(k string) string { return s.prefix + k }

func (s *Redis) Get(ctx context.Context, key string) (string, error) {
    v, err := s.rdb.Get(ctx, s.key(key)).Result()
    if errors.Is(err, redis.Nil) { return "", ErrNotFound }
    if err != nil { return "", err }
    return v, nil
}

func (s *Redis) Set(ctx context.Context, key, value string) error {
    return s.rdb.Set(ctx, s.key(key), value, 0).Err()
}

func (s *Redis) Remove(ctx context.Context, key string) error {
    return s.rdb.Del(ctx, s.key(key)).Err()
}

// Ping verifies connectivity; used by the agent's readiness probe.
func (s *Redis) Ping(ctx context.Context) error {
    return s.rdb.Ping(ctx).Err()
}
