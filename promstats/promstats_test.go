package promstats

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unkn0wn-root/strata"
	"github.com/unkn0wn-root/strata/memory"
	"github.com/unkn0wn-root/strata/store"
)

type staticSource struct {
	st strata.Stats
}

func (s staticSource) Stats() strata.Stats { return s.st }

func testStats() strata.Stats {
	return strata.Stats{
		Hits:   10,
		Misses: 3,
		Ops:    25,
		Memory: memory.Stats{
			Hits:       8,
			Misses:     5,
			Sets:       12,
			Evictions:  1,
			Size:       4,
			MaxEntries: 100,
		},
		Remote: store.Stats{
			Hits:      2,
			Misses:    2,
			Sets:      12,
			Connected: true,
		},
		AvgGetLatency: 1500 * time.Microsecond,
	}
}

func TestCollectorEmitsAllSeries(t *testing.T) {
	c := NewCollector("app", staticSource{st: testStats()})

	if got := testutil.CollectAndCount(c); got != 19 {
		t.Fatalf("collected %d series, want 19", got)
	}
	if _, err := testutil.CollectAndLint(c); err != nil {
		t.Fatalf("lint: %v", err)
	}
}

func TestCollectorValues(t *testing.T) {
	c := NewCollector("app", staticSource{st: testStats()})

	expected := `
		# HELP strata_hits_total Cache hits across both tiers.
		# TYPE strata_hits_total counter
		strata_hits_total{cache="app"} 10
		# HELP strata_ops_total Engine operations, reads and writes combined.
		# TYPE strata_ops_total counter
		strata_ops_total{cache="app"} 25
		# HELP strata_memory_max_entries Memory tier capacity.
		# TYPE strata_memory_max_entries gauge
		strata_memory_max_entries{cache="app"} 100
		# HELP strata_remote_connected 1 when the remote tier is reachable.
		# TYPE strata_remote_connected gauge
		strata_remote_connected{cache="app"} 1
		# HELP strata_avg_get_latency_seconds Mean read latency since start.
		# TYPE strata_avg_get_latency_seconds gauge
		strata_avg_get_latency_seconds{cache="app"} 0.0015
	`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"strata_hits_total",
		"strata_ops_total",
		"strata_memory_max_entries",
		"strata_remote_connected",
		"strata_avg_get_latency_seconds",
	)
	if err != nil {
		t.Fatalf("exposition mismatch: %v", err)
	}
}

func TestCollectorRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector("app", staticSource{st: testStats()})); err != nil {
		t.Fatalf("register: %v", err)
	}

	// collectors for different caches coexist via the label
	if err := reg.Register(NewCollector("sessions", staticSource{})); err != nil {
		t.Fatalf("register second cache: %v", err)
	}
}
