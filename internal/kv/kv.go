// Package kv provides the durable key-value storage used for the retry
// queue and cooldown state.
package kv

import (
    "context"
    "errors"
)

// Store is the persistence interface used by the dispatch core.
type Store interface {
    Get(ctx context.Context, key string) (string, error)
    Set(ctx context.Context, key, value string) error
    Remove(ctx context.Context, key string) error
}

var ErrNotFound = errors.New("not found")
