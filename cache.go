package strata

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/strata/internal/keys"
	"github.com/unkn0wn-root/strata/memory"
	"github.com/unkn0wn-root/strata/store"

	c "github.com/unkn0wn-root/strata/codec"
)

const (
	defaultTTL        = 10 * time.Minute
	defaultMaxEntries = 10_000
	defaultSweep      = 5 * time.Minute

	defaultWriteBehindWorkers = 2
	defaultWriteBehindQueue   = 256
	defaultWriteTimeout       = 10 * time.Second

	// remote deletes run in chunks so one invalidation cannot stall the
	// backend with a single huge DEL
	remoteDelChunk = 512
)

type cache struct {
	ns     string
	codec  c.Codec
	mem    *memory.Store
	remote store.Store // nil => memory-only
	log    Logger
	hooks  Hooks

	defaultTTL time.Duration
	memCeiling time.Duration // upper bound for in-process entry lifetime; 0 => none

	wb *writeBehind

	hits   atomic.Uint64
	misses atomic.Uint64
	getNs  atomic.Int64
	getOps atomic.Uint64
	setNs  atomic.Int64
	setOps atomic.Uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ Cache = (*cache)(nil)

func newCache(opts Options) (*cache, error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("strata: namespace is required")
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("strata: DefaultTTL must be >= 0")
	}
	if opts.Memory.MaxEntries < 0 {
		return nil, fmt.Errorf("strata: Memory.MaxEntries must be >= 0")
	}
	if opts.Memory.DefaultTTL < 0 {
		return nil, fmt.Errorf("strata: Memory.DefaultTTL must be >= 0")
	}
	if opts.WriteBehind.Workers < 0 || opts.WriteBehind.QueueSize < 0 {
		return nil, fmt.Errorf("strata: write-behind sizes must be >= 0")
	}

	sweep := coalesce[time.Duration](opts.Memory.CleanupInterval, defaultSweep)
	if sweep < 0 {
		sweep = 0 // passive expiry only
	}
	mem, err := memory.New(memory.Options{
		MaxEntries:      coalesce(opts.Memory.MaxEntries, defaultMaxEntries),
		CleanupInterval: sweep,
	})
	if err != nil {
		return nil, fmt.Errorf("strata: memory tier: %w", err)
	}

	cc := &cache{
		ns:         opts.Namespace,
		mem:        mem,
		remote:     opts.Remote,
		memCeiling: opts.Memory.DefaultTTL,
	}

	// defaults
	cc.codec = coalesce[c.Codec](opts.Codec, c.JSON{})
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cc.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, defaultTTL)

	cc.wb = newWriteBehind(cc,
		coalesce(opts.WriteBehind.Workers, defaultWriteBehindWorkers),
		coalesce(opts.WriteBehind.QueueSize, defaultWriteBehindQueue),
		coalesce(opts.WriteBehind.WriteTimeout, defaultWriteTimeout),
	)
	return cc, nil
}

func (c *cache) Get(ctx context.Context, key string, dest any, opts ...Option) bool {
	defer c.observeGet(time.Now())
	if c.closed.Load() {
		c.misses.Add(1)
		return false
	}
	oc := applyOpts(opts)

	if !oc.skipMem {
		if b, ok := c.mem.Get(key); ok {
			err := c.codec.Decode(b, dest)
			if err == nil {
				c.hits.Add(1)
				return true
			}
			c.dropEntry(ctx, key, err)
		}
	}
	if c.remote != nil && !oc.skipRemote {
		if b, ok := c.remote.Get(ctx, c.storageKey(key)); ok {
			err := c.codec.Decode(b, dest)
			if err == nil {
				if !oc.skipMem {
					c.backfill(key, b)
				}
				c.hits.Add(1)
				return true
			}
			c.dropEntry(ctx, key, err)
		}
	}
	c.misses.Add(1)
	return false
}

func (c *cache) GetRaw(ctx context.Context, key string, opts ...Option) ([]byte, bool) {
	defer c.observeGet(time.Now())
	if c.closed.Load() {
		c.misses.Add(1)
		return nil, false
	}
	oc := applyOpts(opts)

	if !oc.skipMem {
		if b, ok := c.mem.Get(key); ok {
			c.hits.Add(1)
			out := make([]byte, len(b))
			copy(out, b)
			return out, true
		}
	}
	if c.remote != nil && !oc.skipRemote {
		if b, ok := c.remote.Get(ctx, c.storageKey(key)); ok {
			if !oc.skipMem {
				c.backfill(key, b)
			}
			c.hits.Add(1)
			return b, true
		}
	}
	c.misses.Add(1)
	return nil, false
}

func (c *cache) Set(ctx context.Context, key string, value any, opts ...Option) bool {
	defer c.observeSet(time.Now())
	if c.closed.Load() {
		return false
	}
	b, err := c.codec.Encode(value)
	if err != nil {
		c.log.Error("encode failed", Fields{"key": key, "err": err})
		return false
	}
	return c.setBytes(ctx, key, b, applyOpts(opts))
}

func (c *cache) SetNX(ctx context.Context, key string, value any, opts ...Option) bool {
	defer c.observeSet(time.Now())
	if c.closed.Load() {
		return false
	}
	oc := applyOpts(opts)
	b, err := c.codec.Encode(value)
	if err != nil {
		c.log.Error("encode failed", Fields{"key": key, "err": err})
		return false
	}

	ttl := c.ttlFor(oc)
	if c.remote != nil && !oc.skipRemote {
		// the remote tier arbitrates, so racing replicas agree on the winner
		if !c.remote.SetNX(ctx, c.storageKey(key), b, ttl) {
			return false
		}
		if !oc.skipMem {
			c.mem.Set(key, b, c.memTTL(oc, ttl))
		}
		return true
	}
	if oc.skipMem {
		return false
	}
	return c.mem.SetNX(key, b, c.memTTL(oc, ttl))
}

func (c *cache) Del(ctx context.Context, key string) bool {
	if c.closed.Load() {
		return false
	}
	memHad := c.mem.Delete(key)
	n := 0
	if c.remote != nil {
		n = c.remote.Del(ctx, c.storageKey(key))
	}
	return memHad || n > 0
}

func (c *cache) Exists(ctx context.Context, key string) bool {
	if c.closed.Load() {
		return false
	}
	if c.mem.Exists(key) {
		return true
	}
	if c.remote != nil {
		return c.remote.Exists(ctx, c.storageKey(key))
	}
	return false
}

// MGet decodes every found entry into a plain value (maps/slices for
// structured payloads). Entries the codec cannot decode this way are
// reported missing; use MGetRaw with a typed decode for codecs that need a
// concrete destination type.
func (c *cache) MGet(ctx context.Context, ks []string) (map[string]any, []string) {
	defer c.observeGet(time.Now())
	if c.closed.Load() {
		return map[string]any{}, uniq(ks)
	}

	raw, missing := c.mgetBytes(ctx, ks)
	out := make(map[string]any, len(raw))
	for k, b := range raw {
		var v any
		if err := c.codec.Decode(b, &v); err != nil {
			c.log.Debug("bulk decode failed", Fields{"key": k, "err": err})
			missing = append(missing, k)
			continue
		}
		out[k] = v
	}
	c.hits.Add(uint64(len(out)))
	c.misses.Add(uint64(len(missing)))
	return out, missing
}

func (c *cache) MGetRaw(ctx context.Context, ks []string) (map[string][]byte, []string) {
	defer c.observeGet(time.Now())
	if c.closed.Load() {
		return map[string][]byte{}, uniq(ks)
	}

	raw, missing := c.mgetBytes(ctx, ks)
	out := make(map[string][]byte, len(raw))
	for k, b := range raw {
		cp := make([]byte, len(b))
		copy(cp, b)
		out[k] = cp
	}
	c.hits.Add(uint64(len(out)))
	c.misses.Add(uint64(len(missing)))
	return out, missing
}

func (c *cache) MSet(ctx context.Context, items map[string]any, opts ...Option) bool {
	if len(items) == 0 {
		return true
	}
	defer c.observeSet(time.Now())
	if c.closed.Load() {
		return false
	}
	oc := applyOpts(opts)

	ok := true
	enc := make(map[string][]byte, len(items))
	for k, v := range items {
		b, err := c.codec.Encode(v)
		if err != nil {
			// batch is not atomic; the remaining keys still go out
			c.log.Error("encode failed", Fields{"key": k, "err": err})
			ok = false
			continue
		}
		enc[k] = b
	}
	if len(enc) == 0 {
		return false
	}

	ttl := c.ttlFor(oc)
	if !oc.skipMem {
		mt := c.memTTL(oc, ttl)
		for k, b := range enc {
			c.mem.Set(k, b, mt)
		}
	}
	if c.remote != nil && !oc.skipRemote {
		batch := make(map[string][]byte, len(enc))
		for k, b := range enc {
			batch[c.storageKey(k)] = b
		}
		// aggregate outcome; an outage leaves the memory copies serving
		if !c.remote.MSet(ctx, batch, ttl) && (oc.skipMem || c.remote.Connected()) {
			ok = false
		}
	}
	return ok
}

func (c *cache) Stats() Stats {
	st := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Memory: c.mem.Stats(),
	}
	if c.remote != nil {
		st.Remote = c.remote.Stats()
	}
	gets, sets := c.getOps.Load(), c.setOps.Load()
	st.Ops = gets + sets
	if gets > 0 {
		st.AvgGetLatency = time.Duration(c.getNs.Load() / int64(gets))
	}
	if sets > 0 {
		st.AvgSetLatency = time.Duration(c.setNs.Load() / int64(sets))
	}
	return st
}

func (c *cache) Health(ctx context.Context) Health {
	h := Health{Memory: !c.closed.Load(), Remote: true}
	if c.remote != nil {
		h.Remote = c.remote.Ping(ctx)
	}
	return h
}

// Close drains the write-behind queue, stops the memory sweeper and
// releases the remote store. Idempotent; operations after Close read as
// miss and write as no-op.
func (c *cache) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.wb.close()
		c.mem.Close()
		if c.remote != nil {
			err = c.remote.Close()
		}
	})
	return err
}

// mgetBytes resolves unique keys tier by tier: memory first, one remote
// MGet for the rest. Found remote entries are backfilled into memory.
func (c *cache) mgetBytes(ctx context.Context, ks []string) (map[string][]byte, []string) {
	found := make(map[string][]byte, len(ks))
	order := make([]string, 0, len(ks))
	seen := make(map[string]struct{}, len(ks))
	var rest []string
	for _, k := range ks {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		order = append(order, k)
		if b, ok := c.mem.Get(k); ok {
			found[k] = b
			continue
		}
		rest = append(rest, k)
	}

	if c.remote != nil && len(rest) > 0 {
		got := c.remote.MGet(ctx, keys.JoinAll(c.ns, rest)...)
		for _, k := range rest {
			if b, ok := got[c.storageKey(k)]; ok {
				c.backfill(k, b)
				found[k] = b
			}
		}
	}

	var missing []string
	for _, k := range order {
		if _, ok := found[k]; !ok {
			missing = append(missing, k)
		}
	}
	return found, missing
}

// setBytes writes pre-encoded bytes to both tiers. A memory-only write
// during a remote outage is a degraded success; false means a reachable
// remote tier rejected the write, or no tier accepted it at all.
func (c *cache) setBytes(ctx context.Context, key string, b []byte, oc callOpts) bool {
	ttl := c.ttlFor(oc)
	memWrote := false
	if !oc.skipMem {
		c.mem.Set(key, b, c.memTTL(oc, ttl))
		memWrote = true
	}
	if c.remote == nil || oc.skipRemote {
		return memWrote
	}
	if c.remote.Set(ctx, c.storageKey(key), b, ttl) {
		return true
	}
	if !c.remote.Connected() {
		return memWrote
	}
	return false
}

// dropEntry removes an undecodable entry from both tiers so the next read
// repopulates from the system of record.
func (c *cache) dropEntry(ctx context.Context, key string, err error) {
	c.mem.Delete(key)
	if c.remote != nil {
		c.remote.Del(ctx, c.storageKey(key))
	}
	c.hooks.SelfHeal(key, "decode")
	c.log.Warn("dropped undecodable entry", Fields{"key": key, "err": err})
}

// backfill copies a remote hit into the memory tier. The copy uses the
// engine default TTL (capped by the memory ceiling); the remaining remote
// TTL is not queried, so the local copy may outlive its remote sibling
// within that window.
func (c *cache) backfill(key string, b []byte) {
	cp := make([]byte, len(b))
	copy(cp, b)
	c.mem.Set(key, cp, c.memTTL(callOpts{}, c.defaultTTL))
}

func (c *cache) ttlFor(oc callOpts) time.Duration {
	if oc.ttl != 0 {
		return oc.ttl
	}
	return c.defaultTTL
}

// memTTL resolves the in-process lifetime: per-call override first, then
// the entry TTL bounded by the memory ceiling.
func (c *cache) memTTL(oc callOpts, ttl time.Duration) time.Duration {
	if oc.memTTL != 0 {
		return oc.memTTL
	}
	if c.memCeiling > 0 && (ttl < 0 || ttl > c.memCeiling) {
		return c.memCeiling
	}
	return ttl
}

func (c *cache) storageKey(k string) string {
	return keys.Join(c.ns, k)
}

func (c *cache) delRemote(ctx context.Context, storageKeys []string) int {
	n := 0
	for len(storageKeys) > 0 {
		chunk := storageKeys
		if len(chunk) > remoteDelChunk {
			chunk = chunk[:remoteDelChunk]
		}
		n += c.remote.Del(ctx, chunk...)
		storageKeys = storageKeys[len(chunk):]
	}
	return n
}

func (c *cache) observeGet(start time.Time) {
	c.getNs.Add(int64(time.Since(start)))
	c.getOps.Add(1)
}

func (c *cache) observeSet(start time.Time) {
	c.setNs.Add(int64(time.Since(start)))
	c.setOps.Add(1)
}

func uniq(ks []string) []string {
	out := make([]string, 0, len(ks))
	seen := make(map[string]struct{}, len(ks))
	for _, k := range ks {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
