// Package cache keeps expanded occurrence windows between requests.
//
// Entries are stamped with a version. Any write to events or exceptions calls
// Invalidate, which bumps the version; readers fetch the version before they
// take their store snapshot and store results under it, so a result computed
// from a stale snapshot is never served after the write that outdated it.
package cache

import (
	"context"
	"time"
)

// DefaultTTL bounds how long an entry may be served.
const DefaultTTL = 30 * time.Second

// Cache is implemented by Memory and Redis.
type Cache interface {
	// Version returns the current invalidation version.
	Version(ctx context.Context) (int64, error)
	// Get returns the entry stored under version and key.
	Get(ctx context.Context, version int64, key string) ([]byte, bool, error)
	// Set stores val under version and key. Entries for an outdated version
	// may be dropped.
	Set(ctx context.Context, version int64, key string, val []byte) error
	// Invalidate bumps the version, orphaning every existing entry.
	Invalidate(ctx context.Context) error
	Close() error
}
