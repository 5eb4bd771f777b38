// Package metrics exports statement cache counters to Prometheus.
//
// The collector reads cache.Stats on every scrape, so nothing on the cache
// hot path touches Prometheus:
//
//	c, _ := cache.New(cache.DefaultConfig())
//	prometheus.MustRegister(metrics.NewCollector("orders", c))
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-stmt-cache/cache"
)

const namespace = "stmtcache"

var _ prometheus.Collector = (*Collector)(nil)

// Collector is a prometheus.Collector over a cache.StatsProvider.
type Collector struct {
	source cache.StatsProvider

	entries         *prometheus.Desc
	capacity        *prometheus.Desc
	lookups         *prometheus.Desc
	creates         *prometheus.Desc
	raceLosses      *prometheus.Desc
	conflicts       *prometheus.Desc
	evictions       *prometheus.Desc
	closes          *prometheus.Desc
	closeErrors     *prometheus.Desc
	invalidReleases *prometheus.Desc
}

// NewCollector returns a collector for source. pool is exported as a
// constant label so several pools can share one registry.
func NewCollector(pool string, source cache.StatsProvider) *Collector {
	labels := prometheus.Labels{"pool": pool}
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, variable, labels)
	}

	return &Collector{
		source:          source,
		entries:         desc("entries", "Number of cached prepared statements."),
		capacity:        desc("capacity", "Configured maximum number of cached statements."),
		lookups:         desc("lookups_total", "Statement lookups by result.", "result"),
		creates:         desc("creates_total", "Statements prepared and inserted into the cache."),
		raceLosses:      desc("race_losses_total", "Statements prepared and discarded after losing an insert race."),
		conflicts:       desc("acquire_conflicts_total", "Acquire attempts on a borrowed or evicted statement."),
		evictions:       desc("evictions_total", "Statements evicted by reason.", "reason"),
		closes:          desc("closes_total", "Cached statements closed."),
		closeErrors:     desc("close_errors_total", "Cached statement closes that returned an error."),
		invalidReleases: desc("invalid_releases_total", "Release calls on a handle that was not borrowed."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.capacity
	ch <- c.lookups
	ch <- c.creates
	ch <- c.raceLosses
	ch <- c.conflicts
	ch <- c.evictions
	ch <- c.closes
	ch <- c.closeErrors
	ch <- c.invalidReleases
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	gauge := func(d *prometheus.Desc, v int, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), labels...)
	}
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	gauge(c.entries, s.Entries)
	gauge(c.capacity, s.Capacity)
	counter(c.lookups, s.Hits, "hit")
	counter(c.lookups, s.Misses, "miss")
	counter(c.creates, s.Creates)
	counter(c.raceLosses, s.RaceLosses)
	counter(c.conflicts, s.Conflicts)
	counter(c.evictions, s.CapacityEvictions, "capacity")
	counter(c.evictions, s.Invalidations, "connection")
	counter(c.closes, s.Closes)
	counter(c.closeErrors, s.CloseErrors)
	counter(c.invalidReleases, s.InvalidReleases)
}
