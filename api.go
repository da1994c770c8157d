package strata

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/strata/codec"
	"github.com/unkn0wn-root/strata/store"
)

// NoExpiry pins an entry until it is deleted, invalidated or evicted.
// Usable as a per-call TTL (WithTTL(NoExpiry)) and as a memory-tier TTL.
const NoExpiry = time.Duration(-1)

// FetchFunc loads a value from the system of record on a cache miss.
type FetchFunc func(ctx context.Context) (any, error)

// WriteFunc persists a value to the system of record.
type WriteFunc func(ctx context.Context) error

// Cache is the two-tier engine API. Reads never fail: a decode error or an
// unreachable remote tier reads as a miss. Writes report boolean success;
// a memory-only write during a remote outage counts as (degraded) success,
// while a reachable remote tier rejecting the write does not.
type Cache interface {
	// Single
	Get(ctx context.Context, key string, dest any, opts ...Option) bool
	GetRaw(ctx context.Context, key string, opts ...Option) ([]byte, bool)
	Set(ctx context.Context, key string, value any, opts ...Option) bool
	// SetNX writes only when the key is absent; atomic on the remote tier,
	// lock-guarded in memory-only mode.
	SetNX(ctx context.Context, key string, value any, opts ...Option) bool
	Del(ctx context.Context, key string) bool
	Exists(ctx context.Context, key string) bool

	// Bulk (order-agnostic return; duplicates resolve once)
	MGet(ctx context.Context, keys []string) (found map[string]any, missing []string)
	MGetRaw(ctx context.Context, keys []string) (found map[string][]byte, missing []string)
	MSet(ctx context.Context, items map[string]any, opts ...Option) bool

	// Invalidate removes every entry selected by p from the non-skipped
	// tiers and returns the number of distinct keys removed.
	Invalidate(ctx context.Context, p Pattern, opts ...Option) int

	// GetOrSet is cache-aside: on a miss, fetch runs and its result is
	// decoded into dest and written to the cache best-effort. Concurrent
	// misses each run fetch; there is no cross-caller coordination.
	GetOrSet(ctx context.Context, key string, dest any, fetch FetchFunc, opts ...Option) error
	// SetThrough writes the system of record first; the cache is only
	// touched after write succeeds.
	SetThrough(ctx context.Context, key string, value any, write WriteFunc, opts ...Option) error
	// SetBehind caches immediately and queues write. If the asynchronous
	// write fails, the entry is evicted from both tiers.
	SetBehind(ctx context.Context, key string, value any, write WriteFunc, opts ...Option) error

	Stats() Stats
	Health(ctx context.Context) Health
	Close(ctx context.Context) error
}

// MemoryOptions tune the in-process tier.
type MemoryOptions struct {
	MaxEntries      int           // 0 => 10_000
	DefaultTTL      time.Duration // ceiling for entry lifetime in memory; 0 => follow the entry TTL
	CleanupInterval time.Duration // expired-entry sweep period; 0 => 5m, negative => passive expiry only
}

// WriteBehindOptions tune the SetBehind worker pool.
type WriteBehindOptions struct {
	Workers      int           // 0 => 2
	QueueSize    int           // 0 => 256
	WriteTimeout time.Duration // per-write budget; 0 => 10s
}

// Options tune the engine. Only Namespace is required; others have
// sensible defaults. A nil Remote runs the engine memory-only.
type Options struct {
	// Required. Prefixes every remote key to avoid collisions between
	// engines sharing a backend. e.g. "app:prod"
	Namespace string

	Remote store.Store // nil => memory-only
	Codec  c.Codec     // nil => codec.JSON{}

	Memory      MemoryOptions
	DefaultTTL  time.Duration // singles and batches; 0 => 10m
	Logger      Logger        // if nil, NopLogger is used
	Hooks       Hooks         // if nil, NopHooks is used
	WriteBehind WriteBehindOptions
}

func New(opts Options) (Cache, error) {
	return newCache(opts)
}

// Option adjusts a single call.
type Option func(*callOpts)

type callOpts struct {
	ttl        time.Duration
	memTTL     time.Duration
	skipMem    bool
	skipRemote bool
}

func applyOpts(opts []Option) callOpts {
	var oc callOpts
	for _, o := range opts {
		o(&oc)
	}
	return oc
}

// WithTTL overrides the engine default TTL for this call.
// 0 keeps the default; NoExpiry pins the entry.
func WithTTL(d time.Duration) Option {
	return func(oc *callOpts) { oc.ttl = d }
}

// WithMemoryTTL gives the in-process copy its own, typically shorter,
// lifetime. The remote copy keeps the call TTL.
func WithMemoryTTL(d time.Duration) Option {
	return func(oc *callOpts) { oc.memTTL = d }
}

// SkipMemory leaves the in-process tier untouched for this call: writes
// go remote-only, reads skip the L1 lookup and the backfill.
func SkipMemory() Option {
	return func(oc *callOpts) { oc.skipMem = true }
}

// SkipRemote leaves the remote tier untouched for this call: writes stay
// in-process, reads never reach the store.
func SkipRemote() Option {
	return func(oc *callOpts) { oc.skipRemote = true }
}

// Cached wraps fn so results are served through c. The wrapper is an
// explicit alternative to ad-hoc memoization: callers see the original
// signature, the cache key is derived from the argument.
//
//	loadUser := strata.Cached(cache, time.Minute,
//	    func(id string) string { return "user:" + id + ":profile" },
//	    repo.LoadUser)
//	u, err := loadUser(ctx, "42")
func Cached[A any, R any](c Cache, ttl time.Duration, keyFn func(A) string, fn func(context.Context, A) (R, error)) func(context.Context, A) (R, error) {
	return func(ctx context.Context, arg A) (R, error) {
		var out R
		err := c.GetOrSet(ctx, keyFn(arg), &out, func(ctx context.Context) (any, error) {
			return fn(ctx, arg)
		}, WithTTL(ttl))
		return out, err
	}
}
