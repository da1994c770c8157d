// Package store defines the remote-tier contract the engine consumes.
// Implementations live in subpackages (redis). The backing store is
// substitutable: the engine never sees backend types, only this interface.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks failures caused by an unreachable backend. Only
// operations that cannot degrade silently (counters) return it; everything
// else on a Store fails open.
var ErrUnavailable = errors.New("store: unavailable")

// Store is the narrow surface the cache engine uses. Operations degrade
// instead of failing: with the backend unreachable, reads report miss,
// writes report false, Del and Keys report zero work. Errors are recorded
// in Stats and surfaced through the implementation's logger and hooks.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	// SetNX writes only when the key is absent. Atomic on backends that
	// support conditional writes.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	Del(ctx context.Context, keys ...string) int
	Exists(ctx context.Context, key string) bool

	MGet(ctx context.Context, keys ...string) map[string][]byte
	MSet(ctx context.Context, items map[string][]byte, ttl time.Duration) bool

	// Keys enumerates keys matching a glob pattern without blocking the
	// backend (cursor paging, never a full keyspace lock).
	Keys(ctx context.Context, pattern string) []string

	Ping(ctx context.Context) bool
	Connected() bool
	Stats() Stats
	Close() error
}

// Stats is a point-in-time counter snapshot for one store.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Sets       uint64
	Deletes    uint64
	Errors     uint64
	AvgLatency time.Duration
	Connected  bool
}
