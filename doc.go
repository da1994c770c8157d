// Package strata implements a two-tier cache: a bounded in-process LRU+TTL
// tier in front of an optional remote store, with pattern and tag-based
// invalidation, cache-aside/write-through/write-behind helpers and bounded
// warmup.
//
// Components:
//   - memory.Store: the in-process tier. LRU over a hard entry cap, passive
//     TTL expiry plus an optional background sweeper.
//   - store.Store: the remote tier contract; store/redis implements it with
//     per-operation timeouts and fail-open degradation.
//   - Cache: the two-tier facade. Reads check memory then remote and
//     backfill; writes land in both tiers.
//   - Manager: tag bookkeeping, cascading invalidation driven by dependency
//     rules, data-change triggers and warmup strategies.
//
// Keys:
//
//	<namespace>:<key>  - remote tier
//	<key>              - memory tier and every public API
//
// The cache accelerates a system of record, it is not one: a total cache
// failure costs latency, never correctness. Reads degrade to misses and
// writes report boolean success; only the flow helpers (GetOrSet,
// SetThrough, SetBehind) return errors, and those are the fetch or write
// failing, not the cache.
//
//	cc, _ := strata.New(strata.Options{
//		Namespace: "app",
//		Remote:    redisstore,
//	})
//	defer cc.Close(context.Background())
//
//	cc.Set(ctx, "user:42:profile", p, strata.WithTTL(10*time.Minute))
//	var got Profile
//	if cc.Get(ctx, "user:42:profile", &got) {
//		// hit
//	}
package strata
