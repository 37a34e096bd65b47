// Package cache defines the port interface for the model response cache.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for TTL-bound key-value caching of model
// responses. Implementations must be safe for concurrent use from many
// simultaneous question-processing flows.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
