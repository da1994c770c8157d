package strata

import (
	"time"

	"github.com/unkn0wn-root/strata/memory"
	"github.com/unkn0wn-root/strata/store"
)

// Stats aggregates per-tier counters with engine-level read outcomes.
// Hits counts reads answered by either tier; Misses counts reads answered
// by neither. Tier counters keep their own arithmetic (an L1 miss that L2
// answers is an engine hit). Ops counts every timed engine operation,
// reads and writes combined.
type Stats struct {
	Hits   uint64
	Misses uint64
	Ops    uint64

	Memory memory.Stats
	Remote store.Stats

	AvgGetLatency time.Duration
	AvgSetLatency time.Duration
}

// HitRate is Hits / (Hits + Misses); 0 when no reads happened yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Health reports per-tier liveness. Remote is true when no remote tier is
// configured; a configured but unreachable tier reports false.
type Health struct {
	Memory bool
	Remote bool
}

func (h Health) OK() bool { return h.Memory && h.Remote }
