// Package genstore keeps monotonically increasing generation counters per key.
//
// stockcore uses generations in two places: the tag cache stores the
// generation of every tag an entry depends on, and the auth gate stamps each
// session with the subject's epoch. Bumping a generation invalidates every
// record that captured an older value, without enumerating those records.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
// Use LocalGenStore for a single process, RedisGenStore when replicas share state.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// SnapshotMany returns gens for many keys; missing => 0.
	SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
