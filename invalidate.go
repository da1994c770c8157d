package strata

import (
	"context"

	"github.com/unkn0wn-root/strata/internal/keys"
)

// Invalidate removes every entry matching p and returns the number of
// distinct logical keys removed. An exact glob is a direct delete; a
// metacharacter glob uses the remote store's pattern listing; regex
// patterns list the namespace and filter by key; predicate patterns
// additionally fetch every candidate value. SkipMemory/SkipRemote narrow
// the operation to one tier.
func (c *cache) Invalidate(ctx context.Context, p Pattern, opts ...Option) int {
	if c.closed.Load() || p.isZero() {
		return 0
	}
	oc := applyOpts(opts)
	switch {
	case p.pred != nil:
		return c.invalidatePredicate(ctx, p.pred, oc)
	case p.re != nil:
		return c.invalidateRegex(ctx, p.re.MatchString, oc)
	default:
		return c.invalidateGlob(ctx, p.glob, oc)
	}
}

func (c *cache) invalidateGlob(ctx context.Context, glob string, oc callOpts) int {
	if !keys.IsGlob(glob) {
		memHad := false
		if !oc.skipMem {
			memHad = c.mem.Delete(glob)
		}
		n := 0
		if c.remote != nil && !oc.skipRemote {
			n = c.remote.Del(ctx, c.storageKey(glob))
		}
		if memHad || n > 0 {
			return 1
		}
		return 0
	}

	re, err := keys.GlobToRegexp(glob)
	if err != nil {
		c.log.Warn("invalid glob pattern", Fields{"pattern": glob, "err": err})
		return 0
	}

	removed := make(map[string]struct{})
	if !oc.skipMem {
		for _, k := range c.mem.DeleteMatching(re.MatchString) {
			removed[k] = struct{}{}
		}
	}
	if c.remote != nil && !oc.skipRemote {
		listed := c.remote.Keys(ctx, c.storageKey(glob))
		storage := make([]string, 0, len(listed))
		for _, sk := range listed {
			lk, ok := keys.Strip(c.ns, sk)
			if !ok {
				continue
			}
			removed[lk] = struct{}{}
			storage = append(storage, sk)
		}
		c.deleteListed(ctx, glob, storage)
	}
	return len(removed)
}

// invalidateRegex filters key names only; no values move over the wire.
func (c *cache) invalidateRegex(ctx context.Context, match func(string) bool, oc callOpts) int {
	removed := make(map[string]struct{})

	if !oc.skipMem {
		scanned := c.mem.Len()
		memRemoved := c.mem.DeleteMatching(match)
		for _, k := range memRemoved {
			removed[k] = struct{}{}
		}
		c.hooks.InvalidationScan("memory", "regex", scanned, len(memRemoved))
	}

	if c.remote != nil && !oc.skipRemote {
		listed := c.remote.Keys(ctx, c.storageKey("*"))
		storage := make([]string, 0, len(listed))
		for _, sk := range listed {
			lk, ok := keys.Strip(c.ns, sk)
			if !ok || !match(lk) {
				continue
			}
			removed[lk] = struct{}{}
			storage = append(storage, sk)
		}
		c.hooks.InvalidationScan("remote", "regex", len(listed), len(storage))
		c.log.Warn("regex invalidation scanned remote keyspace", Fields{
			"scanned": len(listed),
			"matched": len(storage),
		})
		c.deleteListed(ctx, "regex", storage)
	}
	return len(removed)
}

// invalidatePredicate evaluates match against each entry's encoded value.
// The remote walk fetches every candidate value in chunks; cost is the
// whole namespace.
func (c *cache) invalidatePredicate(ctx context.Context, match func(string, []byte) bool, oc callOpts) int {
	removed := make(map[string]struct{})

	if !oc.skipMem {
		scanned := 0
		var hit []string
		c.mem.Range(func(k string, v []byte) bool {
			scanned++
			if match(k, v) {
				hit = append(hit, k)
			}
			return true
		})
		for _, k := range hit {
			if c.mem.Delete(k) {
				removed[k] = struct{}{}
			}
		}
		c.hooks.InvalidationScan("memory", "predicate", scanned, len(hit))
	}

	if c.remote != nil && !oc.skipRemote {
		listed := c.remote.Keys(ctx, c.storageKey("*"))
		var storage []string
		for start := 0; start < len(listed); start += remoteDelChunk {
			chunk := listed[start:min(start+remoteDelChunk, len(listed))]
			vals := c.remote.MGet(ctx, chunk...)
			for _, sk := range chunk {
				lk, ok := keys.Strip(c.ns, sk)
				if !ok {
					continue
				}
				v, found := vals[sk]
				if !found || !match(lk, v) {
					continue
				}
				removed[lk] = struct{}{}
				storage = append(storage, sk)
			}
		}
		c.hooks.InvalidationScan("remote", "predicate", len(listed), len(storage))
		c.log.Warn("predicate invalidation fetched remote keyspace", Fields{
			"scanned": len(listed),
			"matched": len(storage),
		})
		c.deleteListed(ctx, "predicate", storage)
	}
	return len(removed)
}

func (c *cache) deleteListed(ctx context.Context, what string, storage []string) {
	if n := c.delRemote(ctx, storage); n < len(storage) {
		c.log.Warn("remote invalidation incomplete", Fields{
			"pattern": what,
			"listed":  len(storage),
			"deleted": n,
		})
	}
}
