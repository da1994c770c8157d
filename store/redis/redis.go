// Package redis implements the remote tier over go-redis. The client owns
// degradation: when the backend stops answering, reads report miss, writes
// report false, and the failure is visible only through stats, logs and the
// StoreDegraded hook. Counters are the exception; a silently dropped
// increment would corrupt the count, so they return an error, wrapping
// store.ErrUnavailable when the backend is unreachable.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/strata"
	"github.com/unkn0wn-root/strata/store"
)

var ErrNilClient = errors.New("redis store: nil client")

// NoExpiry is returned by TTL for keys that exist without an expiry.
const NoExpiry = time.Duration(-1)

const (
	defaultOpTimeout = 5 * time.Second
	defaultScanCount = 512
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this store exclusively owns the client

	OpTimeout time.Duration // per-call budget; 0 => 5s
	ScanCount int64         // SCAN page size; 0 => 512

	Logger strata.Logger // nil => NopLogger
	Hooks  strata.Hooks  // nil => NopHooks
}

type Client struct {
	rdb         goredis.UniversalClient
	closeClient bool
	opTimeout   time.Duration
	scanCount   int64
	log         strata.Logger
	hooks       strata.Hooks

	connected atomic.Bool

	hits    atomic.Uint64
	misses  atomic.Uint64
	sets    atomic.Uint64
	deletes atomic.Uint64
	errs    atomic.Uint64
	latNs   atomic.Int64
	ops     atomic.Uint64
}

var _ store.Store = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	c := &Client{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		opTimeout:   cfg.OpTimeout,
		scanCount:   cfg.ScanCount,
		log:         cfg.Logger,
		hooks:       cfg.Hooks,
	}
	if c.opTimeout <= 0 {
		c.opTimeout = defaultOpTimeout
	}
	if c.scanCount <= 0 {
		c.scanCount = defaultScanCount
	}
	if c.log == nil {
		c.log = strata.NopLogger{}
	}
	if c.hooks == nil {
		c.hooks = strata.NopHooks{}
	}
	c.connected.Store(true)
	return c, nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool) {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	b, err := c.rdb.Get(tctx, key).Bytes()
	if err == goredis.Nil {
		c.okOp("get")
		c.misses.Add(1)
		return nil, false
	}
	if err != nil {
		c.fail("get", err)
		return nil, false
	}
	c.okOp("get")
	c.hits.Add(1)
	return b, true
}

func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0 // non-positive TTLs mean "no expiry" here
	}
	if err := c.rdb.Set(tctx, key, value, ttl).Err(); err != nil {
		c.fail("set", err)
		return false
	}
	c.okOp("set")
	c.sets.Add(1)
	return true
}

// SetNX writes only when key is absent. Returns false both when the key
// already exists and when the backend is unreachable; Connected()
// distinguishes the two.
func (c *Client) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	ok, err := c.rdb.SetNX(tctx, key, value, ttl).Result()
	if err != nil {
		c.fail("setnx", err)
		return false
	}
	c.okOp("setnx")
	if ok {
		c.sets.Add(1)
	}
	return ok
}

func (c *Client) Del(ctx context.Context, keys ...string) int {
	if len(keys) == 0 {
		return 0
	}
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	n, err := c.rdb.Del(tctx, keys...).Result()
	if err != nil {
		c.fail("del", err)
		return 0
	}
	c.okOp("del")
	c.deletes.Add(uint64(n))
	return int(n)
}

func (c *Client) Exists(ctx context.Context, key string) bool {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	n, err := c.rdb.Exists(tctx, key).Result()
	if err != nil {
		c.fail("exists", err)
		return false
	}
	c.okOp("exists")
	return n > 0
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	ok, err := c.rdb.Expire(tctx, key, ttl).Result()
	if err != nil {
		c.fail("expire", err)
		return false
	}
	c.okOp("expire")
	return ok
}

// TTL returns the remaining lifetime. ok is false when the key does not
// exist or the backend is unreachable; NoExpiry marks persistent keys.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, bool) {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	d, err := c.rdb.TTL(tctx, key).Result()
	if err != nil {
		c.fail("ttl", err)
		return 0, false
	}
	c.okOp("ttl")
	switch d {
	case -2: // missing key
		return 0, false
	case -1:
		return NoExpiry, true
	default:
		return d, true
	}
}

func (c *Client) MGet(ctx context.Context, keys ...string) map[string][]byte {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out
	}
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	vals, err := c.rdb.MGet(tctx, keys...).Result()
	if err != nil {
		c.fail("mget", err)
		return out
	}
	c.okOp("mget")
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			c.misses.Add(1)
			continue
		}
		out[keys[i]] = []byte(s)
		c.hits.Add(1)
	}
	return out
}

// MSet writes all items with one pipeline. MSET has no TTL, so each entry
// goes out as its own SET.
func (c *Client) MSet(ctx context.Context, items map[string][]byte, ttl time.Duration) bool {
	if len(items) == 0 {
		return true
	}
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	_, err := c.rdb.Pipelined(tctx, func(p goredis.Pipeliner) error {
		for k, v := range items {
			p.Set(tctx, k, v, ttl)
		}
		return nil
	})
	if err != nil {
		c.fail("mset", err)
		return false
	}
	c.okOp("mset")
	c.sets.Add(uint64(len(items)))
	return true
}

// Keys walks the keyspace with SCAN. Pages of ScanCount keep the server
// responsive; a huge pattern still costs a full keyspace pass.
func (c *Client) Keys(ctx context.Context, pattern string) []string {
	defer c.observe(time.Now())

	var out []string
	var cursor uint64
	for {
		tctx, cancel := c.opCtx(ctx)
		ks, next, err := c.rdb.Scan(tctx, cursor, pattern, c.scanCount).Result()
		cancel()
		if err != nil {
			c.fail("scan", err)
			return out
		}
		out = append(out, ks...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.okOp("scan")
	return out
}

// FlushPattern removes every key matching the glob pattern and returns the
// removed count. Deletes page by page so a partial failure leaves earlier
// pages applied.
func (c *Client) FlushPattern(ctx context.Context, pattern string) int {
	removed := 0
	var cursor uint64
	for {
		tctx, cancel := c.opCtx(ctx)
		ks, next, err := c.rdb.Scan(tctx, cursor, pattern, c.scanCount).Result()
		cancel()
		if err != nil {
			c.fail("scan", err)
			return removed
		}
		if len(ks) > 0 {
			removed += c.Del(ctx, ks...)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.okOp("scan")
	return removed
}

func (c *Client) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	n, err := c.rdb.IncrBy(tctx, key, delta).Result()
	if err != nil {
		c.fail("incrby", err)
		if transportErr(err) {
			return 0, fmt.Errorf("incrby %q: %w: %w", key, store.ErrUnavailable, err)
		}
		return 0, fmt.Errorf("incrby %q: %w", key, err)
	}
	c.okOp("incrby")
	return n, nil
}

func (c *Client) DecrBy(ctx context.Context, key string, delta int64) (int64, error) {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	n, err := c.rdb.DecrBy(tctx, key, delta).Result()
	if err != nil {
		c.fail("decrby", err)
		if transportErr(err) {
			return 0, fmt.Errorf("decrby %q: %w: %w", key, store.ErrUnavailable, err)
		}
		return 0, fmt.Errorf("decrby %q: %w", key, err)
	}
	c.okOp("decrby")
	return n, nil
}

func (c *Client) HSet(ctx context.Context, key string, fields map[string]string) bool {
	if len(fields) == 0 {
		return true
	}
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.rdb.HSet(tctx, key, fields).Err(); err != nil {
		c.fail("hset", err)
		return false
	}
	c.okOp("hset")
	c.sets.Add(1)
	return true
}

func (c *Client) HGet(ctx context.Context, key, field string) (string, bool) {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	v, err := c.rdb.HGet(tctx, key, field).Result()
	if err == goredis.Nil {
		c.okOp("hget")
		c.misses.Add(1)
		return "", false
	}
	if err != nil {
		c.fail("hget", err)
		return "", false
	}
	c.okOp("hget")
	c.hits.Add(1)
	return v, true
}

func (c *Client) HGetAll(ctx context.Context, key string) map[string]string {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	m, err := c.rdb.HGetAll(tctx, key).Result()
	if err != nil {
		c.fail("hgetall", err)
		return map[string]string{}
	}
	c.okOp("hgetall")
	return m
}

func (c *Client) HDel(ctx context.Context, key string, fields ...string) int {
	if len(fields) == 0 {
		return 0
	}
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	n, err := c.rdb.HDel(tctx, key, fields...).Result()
	if err != nil {
		c.fail("hdel", err)
		return 0
	}
	c.okOp("hdel")
	c.deletes.Add(uint64(n))
	return int(n)
}

func (c *Client) LPush(ctx context.Context, key string, vals ...string) int64 {
	if len(vals) == 0 {
		return 0
	}
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	n, err := c.rdb.LPush(tctx, key, anys(vals)...).Result()
	if err != nil {
		c.fail("lpush", err)
		return 0
	}
	c.okOp("lpush")
	c.sets.Add(1)
	return n
}

func (c *Client) RPush(ctx context.Context, key string, vals ...string) int64 {
	if len(vals) == 0 {
		return 0
	}
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	n, err := c.rdb.RPush(tctx, key, anys(vals)...).Result()
	if err != nil {
		c.fail("rpush", err)
		return 0
	}
	c.okOp("rpush")
	c.sets.Add(1)
	return n
}

func (c *Client) LRange(ctx context.Context, key string, start, stop int64) []string {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	vs, err := c.rdb.LRange(tctx, key, start, stop).Result()
	if err != nil {
		c.fail("lrange", err)
		return nil
	}
	c.okOp("lrange")
	return vs
}

func (c *Client) LLen(ctx context.Context, key string) int64 {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	n, err := c.rdb.LLen(tctx, key).Result()
	if err != nil {
		c.fail("llen", err)
		return 0
	}
	c.okOp("llen")
	return n
}

func (c *Client) LPop(ctx context.Context, key string) (string, bool) {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	v, err := c.rdb.LPop(tctx, key).Result()
	if err == goredis.Nil {
		c.okOp("lpop")
		return "", false
	}
	if err != nil {
		c.fail("lpop", err)
		return "", false
	}
	c.okOp("lpop")
	return v, true
}

func (c *Client) SAdd(ctx context.Context, key string, members ...string) int64 {
	if len(members) == 0 {
		return 0
	}
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	n, err := c.rdb.SAdd(tctx, key, anys(members)...).Result()
	if err != nil {
		c.fail("sadd", err)
		return 0
	}
	c.okOp("sadd")
	c.sets.Add(1)
	return n
}

func (c *Client) SMembers(ctx context.Context, key string) []string {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	ms, err := c.rdb.SMembers(tctx, key).Result()
	if err != nil {
		c.fail("smembers", err)
		return nil
	}
	c.okOp("smembers")
	return ms
}

func (c *Client) SIsMember(ctx context.Context, key, member string) bool {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	ok, err := c.rdb.SIsMember(tctx, key, member).Result()
	if err != nil {
		c.fail("sismember", err)
		return false
	}
	c.okOp("sismember")
	return ok
}

func (c *Client) SRem(ctx context.Context, key string, members ...string) int64 {
	if len(members) == 0 {
		return 0
	}
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	n, err := c.rdb.SRem(tctx, key, anys(members)...).Result()
	if err != nil {
		c.fail("srem", err)
		return 0
	}
	c.okOp("srem")
	c.deletes.Add(uint64(n))
	return n
}

func (c *Client) Publish(ctx context.Context, channel string, payload []byte) bool {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.rdb.Publish(tctx, channel, payload).Err(); err != nil {
		c.fail("publish", err)
		return false
	}
	c.okOp("publish")
	return true
}

// Subscribe hands back a raw subscription. The caller owns its lifecycle;
// no per-call timeout applies (subscriptions are long-lived).
func (c *Client) Subscribe(ctx context.Context, channels ...string) *goredis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

func (c *Client) Ping(ctx context.Context) bool {
	defer c.observe(time.Now())
	tctx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.rdb.Ping(tctx).Err(); err != nil {
		c.fail("ping", err)
		return false
	}
	c.okOp("ping")
	return true
}

func (c *Client) Connected() bool { return c.connected.Load() }

func (c *Client) Stats() store.Stats {
	ops := c.ops.Load()
	var avg time.Duration
	if ops > 0 {
		avg = time.Duration(c.latNs.Load() / int64(ops))
	}
	return store.Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Sets:       c.sets.Load(),
		Deletes:    c.deletes.Load(),
		Errors:     c.errs.Load(),
		AvgLatency: avg,
		Connected:  c.connected.Load(),
	}
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (c *Client) Close() error {
	if c.closeClient {
		if err := c.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

func (c *Client) observe(start time.Time) {
	c.latNs.Add(int64(time.Since(start)))
	c.ops.Add(1)
}

// fail records an op error. Connectivity (and the degraded/recovered hook
// pair) flips only on transport errors: a server answering WRONGTYPE is
// rejecting one command, not unreachable.
func (c *Client) fail(op string, err error) {
	c.errs.Add(1)
	if !transportErr(err) {
		c.log.Debug("remote store rejected command", strata.Fields{"op": op, "err": err})
		return
	}
	if c.connected.Swap(false) {
		c.hooks.StoreDegraded(op, err)
		c.log.Warn("remote store degraded", strata.Fields{"op": op, "err": err})
		return
	}
	c.log.Debug("remote store error", strata.Fields{"op": op, "err": err})
}

// transportErr reports whether err means the server is unreachable rather
// than unhappy with the command. Caller cancellation is neither; it says
// nothing about the server.
func transportErr(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) { // context.DeadlineExceeded satisfies net.Error
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, goredis.ErrClosed)
}

func (c *Client) okOp(op string) {
	if !c.connected.Swap(true) {
		c.hooks.StoreRecovered(op)
		c.log.Info("remote store recovered", strata.Fields{"op": op})
	}
}

func anys(vs []string) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
