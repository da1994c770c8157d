// Package promstats exposes a cache's statistics as Prometheus metrics.
//
// The collector reads a stats snapshot on every scrape, so it needs no
// wiring into the cache's hot path:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(promstats.NewCollector("sessions", cache))
package promstats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/strata"
)

// Source is anything that can snapshot cache statistics. Both the cache
// and the manager qualify.
type Source interface {
	Stats() strata.Stats
}

type Collector struct {
	src Source

	hits       *prometheus.Desc
	misses     *prometheus.Desc
	ops        *prometheus.Desc
	avgGet     *prometheus.Desc
	avgSet     *prometheus.Desc
	memHits    *prometheus.Desc
	memMisses  *prometheus.Desc
	memSets    *prometheus.Desc
	memEvicted *prometheus.Desc
	memExpired *prometheus.Desc
	memSize    *prometheus.Desc
	memMax     *prometheus.Desc
	remHits    *prometheus.Desc
	remMisses  *prometheus.Desc
	remSets    *prometheus.Desc
	remDeletes *prometheus.Desc
	remErrors  *prometheus.Desc
	remLatency *prometheus.Desc
	remUp      *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector for one cache instance. name becomes the
// "cache" label on every metric. Memory-only caches report the remote
// series as zero.
func NewCollector(name string, src Source) *Collector {
	l := prometheus.Labels{"cache": name}
	return &Collector{
		src:        src,
		hits:       prometheus.NewDesc("strata_hits_total", "Cache hits across both tiers.", nil, l),
		misses:     prometheus.NewDesc("strata_misses_total", "Cache misses across both tiers.", nil, l),
		ops:        prometheus.NewDesc("strata_ops_total", "Engine operations, reads and writes combined.", nil, l),
		avgGet:     prometheus.NewDesc("strata_avg_get_latency_seconds", "Mean read latency since start.", nil, l),
		avgSet:     prometheus.NewDesc("strata_avg_set_latency_seconds", "Mean write latency since start.", nil, l),
		memHits:    prometheus.NewDesc("strata_memory_hits_total", "Memory tier hits.", nil, l),
		memMisses:  prometheus.NewDesc("strata_memory_misses_total", "Memory tier misses.", nil, l),
		memSets:    prometheus.NewDesc("strata_memory_sets_total", "Memory tier writes.", nil, l),
		memEvicted: prometheus.NewDesc("strata_memory_evictions_total", "Entries evicted by the LRU cap.", nil, l),
		memExpired: prometheus.NewDesc("strata_memory_expirations_total", "Entries removed by TTL expiry.", nil, l),
		memSize:    prometheus.NewDesc("strata_memory_entries", "Live entries in the memory tier.", nil, l),
		memMax:     prometheus.NewDesc("strata_memory_max_entries", "Memory tier capacity.", nil, l),
		remHits:    prometheus.NewDesc("strata_remote_hits_total", "Remote tier hits.", nil, l),
		remMisses:  prometheus.NewDesc("strata_remote_misses_total", "Remote tier misses.", nil, l),
		remSets:    prometheus.NewDesc("strata_remote_sets_total", "Remote tier writes.", nil, l),
		remDeletes: prometheus.NewDesc("strata_remote_deletes_total", "Remote tier deletes.", nil, l),
		remErrors:  prometheus.NewDesc("strata_remote_errors_total", "Remote tier operation failures.", nil, l),
		remLatency: prometheus.NewDesc("strata_remote_avg_latency_seconds", "Mean remote operation latency.", nil, l),
		remUp:      prometheus.NewDesc("strata_remote_connected", "1 when the remote tier is reachable.", nil, l),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.ops
	ch <- c.avgGet
	ch <- c.avgSet
	ch <- c.memHits
	ch <- c.memMisses
	ch <- c.memSets
	ch <- c.memEvicted
	ch <- c.memExpired
	ch <- c.memSize
	ch <- c.memMax
	ch <- c.remHits
	ch <- c.remMisses
	ch <- c.remSets
	ch <- c.remDeletes
	ch <- c.remErrors
	ch <- c.remLatency
	ch <- c.remUp
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.hits, st.Hits)
	counter(c.misses, st.Misses)
	counter(c.ops, st.Ops)
	gauge(c.avgGet, st.AvgGetLatency.Seconds())
	gauge(c.avgSet, st.AvgSetLatency.Seconds())

	counter(c.memHits, st.Memory.Hits)
	counter(c.memMisses, st.Memory.Misses)
	counter(c.memSets, st.Memory.Sets)
	counter(c.memEvicted, st.Memory.Evictions)
	counter(c.memExpired, st.Memory.Expirations)
	gauge(c.memSize, float64(st.Memory.Size))
	gauge(c.memMax, float64(st.Memory.MaxEntries))

	counter(c.remHits, st.Remote.Hits)
	counter(c.remMisses, st.Remote.Misses)
	counter(c.remSets, st.Remote.Sets)
	counter(c.remDeletes, st.Remote.Deletes)
	counter(c.remErrors, st.Remote.Errors)
	gauge(c.remLatency, st.Remote.AvgLatency.Seconds())
	if st.Remote.Connected {
		gauge(c.remUp, 1)
	} else {
		gauge(c.remUp, 0)
	}
}
