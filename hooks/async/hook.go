// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/strata"
//	"github.com/unkn0wn-root/strata/hooks/async"
//	"github.com/unkn0wn-root/strata/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery:         10, // sample logs: ~every 10th self-heal
//	    InvalidationScanEvery: 1,  // log every keyspace walk
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	cache, _ := strata.New(strata.Options{
//	    Namespace: "app:prod",
//	    Remote:    remote,
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/strata"
)

type Hooks struct {
	inner strata.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ strata.Hooks = (*Hooks)(nil)

func New(inner strata.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SelfHeal(k, r string) { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) StoreDegraded(op string, err error) {
	h.try(func() { h.inner.StoreDegraded(op, err) })
}
func (h *Hooks) StoreRecovered(op string) { h.try(func() { h.inner.StoreRecovered(op) }) }
func (h *Hooks) WriteBehindFailure(k string, err error) {
	h.try(func() { h.inner.WriteBehindFailure(k, err) })
}
func (h *Hooks) WriteBehindOverflow(k string) { h.try(func() { h.inner.WriteBehindOverflow(k) }) }
func (h *Hooks) InvalidationScan(tier, kind string, scanned, matched int) {
	h.try(func() { h.inner.InvalidationScan(tier, kind, scanned, matched) })
}
func (h *Hooks) WarmupStrategyDone(name string, loaded int, err error) {
	h.try(func() { h.inner.WarmupStrategyDone(name, loaded, err) })
}
