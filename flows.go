package strata

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// GetOrSet returns the cached value when present, otherwise runs fetch,
// caches its result and decodes it into dest. The fetched value is round-
// tripped through the codec so dest always observes codec semantics.
func (c *cache) GetOrSet(ctx context.Context, key string, dest any, fetch FetchFunc, opts ...Option) error {
	if c.closed.Load() {
		return fmt.Errorf("strata: cache is closed")
	}
	if c.Get(ctx, key, dest, opts...) {
		return nil
	}

	v, err := fetch(ctx)
	if err != nil {
		return fmt.Errorf("strata: fetch %q: %w", key, err)
	}
	b, err := c.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("strata: encode %q: %w", key, err)
	}
	c.setBytes(ctx, key, b, applyOpts(opts)) // degraded tiers fail open
	if err := c.codec.Decode(b, dest); err != nil {
		return &DecodeError{Key: key, Err: err}
	}
	return nil
}

// SetThrough writes to the system of record first and caches only after
// that write succeeds. A failed cache write is logged, not returned; the
// durable write already happened.
func (c *cache) SetThrough(ctx context.Context, key string, value any, write WriteFunc, opts ...Option) error {
	if c.closed.Load() {
		return fmt.Errorf("strata: cache is closed")
	}
	if err := write(ctx); err != nil {
		return fmt.Errorf("strata: write-through %q: %w", key, err)
	}
	if !c.Set(ctx, key, value, opts...) {
		c.log.Warn("write-through cached partially", Fields{"key": key})
	}
	return nil
}

// SetBehind caches immediately and hands the system-of-record write to the
// background pool. A full queue never drops the write; the overflow runs on
// its own goroutine. When the write ultimately fails, the cached entry is
// evicted from both tiers so readers fall back to the system of record. A
// pool that already closed refuses the job; the fresh entry is evicted and
// an error returned so no cached value outlives its never-queued write.
func (c *cache) SetBehind(ctx context.Context, key string, value any, write WriteFunc, opts ...Option) error {
	if c.closed.Load() {
		return fmt.Errorf("strata: cache is closed")
	}
	b, err := c.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("strata: encode %q: %w", key, err)
	}
	c.setBytes(ctx, key, b, applyOpts(opts))
	if !c.wb.enqueue(key, write) {
		c.wb.evict(key)
		return fmt.Errorf("strata: cache is closed")
	}
	return nil
}

type wbJob struct {
	key   string
	write WriteFunc
}

type writeBehind struct {
	c       *cache
	q       chan wbJob
	timeout time.Duration

	// mu serializes enqueue against close: a job accepted under the read
	// lock is in the channel or counted in overflow before close can
	// start draining.
	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	overflow sync.WaitGroup
	once     sync.Once
}

func newWriteBehind(c *cache, workers, queue int, timeout time.Duration) *writeBehind {
	wb := &writeBehind{
		c:       c,
		q:       make(chan wbJob, queue),
		timeout: timeout,
	}
	wb.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wb.wg.Done()
			for j := range wb.q {
				wb.run(j)
			}
		}()
	}
	return wb
}

// enqueue hands the job to the pool. false means the pool already closed
// and the job was not accepted.
func (wb *writeBehind) enqueue(key string, write WriteFunc) bool {
	wb.mu.RLock()
	defer wb.mu.RUnlock()
	if wb.closed {
		return false
	}
	select {
	case wb.q <- wbJob{key: key, write: write}:
	default:
		wb.overflow.Add(1)
		wb.c.hooks.WriteBehindOverflow(key)
		wb.c.log.Warn("write-behind queue full, spawning", Fields{"key": key})
		go func() {
			defer wb.overflow.Done()
			wb.run(wbJob{key: key, write: write})
		}()
	}
	return true
}

func (wb *writeBehind) run(j wbJob) {
	ctx, cancel := context.WithTimeout(context.Background(), wb.timeout)
	err := j.write(ctx)
	cancel()
	if err == nil {
		return
	}
	wb.c.hooks.WriteBehindFailure(j.key, err)
	wb.c.log.Error("write-behind failed, evicting", Fields{"key": j.key, "err": err})

	// the failed write's deadline may be spent already; eviction gets its own
	wb.evict(j.key)
}

func (wb *writeBehind) evict(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), wb.timeout)
	defer cancel()
	wb.c.mem.Delete(key)
	if wb.c.remote != nil {
		wb.c.remote.Del(ctx, wb.c.storageKey(key))
	}
}

// close waits for queued and overflow writes to finish. Taking the write
// lock before closing the channel excludes in-flight enqueues, so every
// accepted job is visible to the waits below.
func (wb *writeBehind) close() {
	wb.once.Do(func() {
		wb.mu.Lock()
		wb.closed = true
		close(wb.q)
		wb.mu.Unlock()
		wb.wg.Wait()
		wb.overflow.Wait()
	})
}
