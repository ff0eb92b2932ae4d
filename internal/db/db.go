// Package db defines the key-value store behind the predictive cache.
// The memory driver is the default; the redis driver keeps warm
// bundles in Redis with server-side TTL so a restart does not start
// fully cold.
package db

import (
	"context"
	"time"
)

// Store is the bundle-store facade.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	// DelPrefix removes every key under the given prefix; used by the
	// administrative cache clear.
	DelPrefix(ctx context.Context, prefix string) error
	Ping(ctx context.Context) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()
}
