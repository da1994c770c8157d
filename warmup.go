package strata

import (
	"context"
	"fmt"
	"time"
)

const defaultWarmupBatch = 128

// WarmupItem is one pre-loaded entry. TTL zero falls back to the
// strategy's TTL, then to the engine default.
type WarmupItem struct {
	Key   string
	Value any
	TTL   time.Duration
}

// WarmupStrategy loads one bounded batch from the system of record.
type WarmupStrategy struct {
	Name string
	TTL  time.Duration
	Tags []string // applied to every warmed key
	Load func(ctx context.Context) ([]WarmupItem, error)
}

// WarmupOptions bound a warmup run. Strategies execute sequentially;
// StrategyDelay spaces them out to limit load on the system of record and
// MaxDuration caps the whole run (strategies left over are skipped, not
// failed).
type WarmupOptions struct {
	Strategies    []WarmupStrategy
	StrategyDelay time.Duration
	MaxDuration   time.Duration
	BatchSize     int // per-MSet chunk, default 128
}

type StrategyResult struct {
	Name   string
	Loaded int
	Err    error
}

type WarmupResult struct {
	Strategies []StrategyResult
	Loaded     int
	Skipped    int // strategies dropped by the duration budget
	Elapsed    time.Duration
}

// Warmup runs the configured strategies in order. A partial run is normal
// operation, never an error: strategy failures land in the per-strategy
// result and budget exhaustion skips whatever remains.
func (m *Manager) Warmup(ctx context.Context) WarmupResult {
	start := time.Now()
	if m.warmup.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.warmup.MaxDuration)
		defer cancel()
	}

	var res WarmupResult
	total := len(m.warmup.Strategies)
	for i, st := range m.warmup.Strategies {
		if i > 0 {
			m.pause(ctx)
		}
		if ctx.Err() != nil {
			res.Skipped = total - i
			m.log.Warn("warmup budget exhausted", Fields{
				"done":    i,
				"skipped": res.Skipped,
			})
			break
		}
		sr := m.runStrategy(ctx, st)
		res.Strategies = append(res.Strategies, sr)
		res.Loaded += sr.Loaded
		m.hooks.WarmupStrategyDone(st.Name, sr.Loaded, sr.Err)
		if sr.Err != nil {
			m.log.Error("warmup strategy failed", Fields{"strategy": st.Name, "err": sr.Err})
		}
	}
	res.Elapsed = time.Since(start)
	m.log.Info("warmup finished", Fields{
		"loaded":  res.Loaded,
		"skipped": res.Skipped,
		"elapsed": res.Elapsed.String(),
	})
	return res
}

func (m *Manager) runStrategy(ctx context.Context, st WarmupStrategy) StrategyResult {
	sr := StrategyResult{Name: st.Name}
	if st.Load == nil {
		sr.Err = fmt.Errorf("strata: warmup %q has no loader", st.Name)
		return sr
	}
	items, err := st.Load(ctx)
	if err != nil {
		sr.Err = fmt.Errorf("strata: warmup %q: %w", st.Name, err)
		return sr
	}

	total := len(items)
	batch := coalesce(m.warmup.BatchSize, defaultWarmupBatch)
	failed := 0
	for len(items) > 0 {
		n := min(batch, len(items))
		loaded, fails := m.warmChunk(ctx, st, items[:n])
		sr.Loaded += loaded
		failed += fails
		items = items[n:]
	}
	if failed > 0 {
		sr.Err = &BatchError{Op: "warmup:" + st.Name, Failed: failed, Total: total}
	}
	return sr
}

// warmChunk groups the chunk by effective TTL so each group lands in one
// batched write, then tags the stored keys.
func (m *Manager) warmChunk(ctx context.Context, st WarmupStrategy, chunk []WarmupItem) (loaded, failed int) {
	groups := make(map[time.Duration]map[string]any)
	for _, it := range chunk {
		ttl := it.TTL
		if ttl == 0 {
			ttl = st.TTL
		}
		g := groups[ttl]
		if g == nil {
			g = make(map[string]any)
			groups[ttl] = g
		}
		g[it.Key] = it.Value
	}

	for ttl, g := range groups {
		var opts []Option
		if ttl != 0 {
			opts = append(opts, WithTTL(ttl))
		}
		if !m.cache.MSet(ctx, g, opts...) {
			failed += len(g)
			continue
		}
		loaded += len(g)
		for k := range g {
			m.tagKey(k, st.Tags)
		}
	}
	return loaded, failed
}

func (m *Manager) pause(ctx context.Context) {
	if m.warmup.StrategyDelay <= 0 {
		return
	}
	t := time.NewTimer(m.warmup.StrategyDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
