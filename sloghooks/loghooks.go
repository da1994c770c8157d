package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/strata"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery         uint64
	InvalidationScanEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	scanCtr     atomic.Uint64
}

var _ strata.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(key, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("strata.self_heal",
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) StoreDegraded(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("strata.store_degraded",
		"op", op,
		"err", err)
}

func (h *Hooks) StoreRecovered(op string) {
	if h.l == nil {
		return
	}
	h.l.Info("strata.store_recovered",
		"op", op)
}

func (h *Hooks) WriteBehindFailure(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("strata.write_behind_failure",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) WriteBehindOverflow(key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("strata.write_behind_overflow",
		"key", h.redact(key))
}

func (h *Hooks) InvalidationScan(tier, kind string, scanned, matched int) {
	if h.l == nil || !sample(h.opts.InvalidationScanEvery, &h.scanCtr) {
		return
	}
	h.l.Info("strata.invalidation_scan",
		"tier", tier,
		"kind", kind,
		"scanned", scanned,
		"matched", matched)
}

func (h *Hooks) WarmupStrategyDone(name string, loaded int, err error) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Warn("strata.warmup_strategy",
			"strategy", name,
			"loaded", loaded,
			"err", err)
		return
	}
	h.l.Info("strata.warmup_strategy",
		"strategy", name,
		"loaded", loaded)
}
