package kv

import (
    "context"
    "sync"
)

// Memory is a simple in-memory store used when no DATABASE_URL or
// REDIS_URL is set, and in tests.
type Memory struct {
    mu sync.Mutex
    m  map[string]string
}

func NewMemory() *Memory {
    return &Memory{m: map[string]string{}}
}

func (s *Memory) Get(ctx context.Context, key string) (string, error) {
    s.mu.Lock(); defer s.mu.Unlock()
    v, ok := s.m[key]
    if !ok { return "", ErrNotFound }
    return v, nil
}

func (s *Memory) Set(ctx context.Context, key, value string) error {
    s.mu.Lock(); defer s.mu.Unlock()
    s.m[key] = value
    return nil
}

func (s *Memory) Remove(ctx context.Context, key string) error {
    s.mu.Lock(); defer s.mu.Unlock()
    delete(s.m, key)
    return nil
}
