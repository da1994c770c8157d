package strata

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A single entry was dropped by the cache on read.
	// reason names why ("decode" for undecodable payloads).
	SelfHeal(key, reason string)

	// The remote tier stopped answering; op is the call that observed it.
	// Fired on the transition only, not on every failed call.
	StoreDegraded(op string, err error)

	// The remote tier answered again after a degraded stretch.
	StoreRecovered(op string)

	// An asynchronous system-of-record write failed; the entry was evicted
	// from both tiers.
	WriteBehindFailure(key string, err error)

	// The write-behind queue was full; the write ran on its own goroutine.
	WriteBehindOverflow(key string)

	// An invalidation listed a tier's keyspace and filtered it client-side
	// ("memory" or "remote"); kind is "regex" or "predicate". Exact and
	// glob invalidations never fire it, their narrowing is native.
	InvalidationScan(tier, kind string, scanned, matched int)

	// One warmup strategy finished (or failed; err != nil).
	WarmupStrategyDone(name string, loaded int, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)                   {}
func (NopHooks) StoreDegraded(string, error)               {}
func (NopHooks) StoreRecovered(string)                     {}
func (NopHooks) WriteBehindFailure(string, error)          {}
func (NopHooks) WriteBehindOverflow(string)                {}
func (NopHooks) InvalidationScan(string, string, int, int) {}
func (NopHooks) WarmupStrategyDone(string, int, error)     {}
