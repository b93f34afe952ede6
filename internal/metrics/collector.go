package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bladelsp"

type metric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(Snapshot) float64
}

// Collector exposes a Snapshot source as Prometheus metrics. Values are
// read on every scrape so the collector never goes stale.
type Collector struct {
	source  func() Snapshot
	metrics []metric
}

func NewCollector(source func() Snapshot) *Collector {
	counter := func(name, help string, v func(Snapshot) int64) metric {
		return metric{
			desc:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
			valueType: prometheus.CounterValue,
			value:     func(s Snapshot) float64 { return float64(v(s)) },
		}
	}
	gauge := func(name, help string, v func(Snapshot) float64) metric {
		return metric{
			desc:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
			valueType: prometheus.GaugeValue,
			value:     v,
		}
	}

	return &Collector{
		source: source,
		metrics: []metric{
			counter("pattern_hits_total", "Pattern cache hits.", func(s Snapshot) int64 { return s.PatternHits }),
			counter("pattern_misses_total", "Pattern cache misses.", func(s Snapshot) int64 { return s.PatternMisses }),
			counter("pattern_evictions_total", "Pattern cache LRU evictions.", func(s Snapshot) int64 { return s.PatternEvictions }),
			counter("hover_hits_total", "Hover cache hits.", func(s Snapshot) int64 { return s.HoverHits }),
			counter("hover_misses_total", "Hover cache misses.", func(s Snapshot) int64 { return s.HoverMisses }),
			counter("hover_evictions_total", "Hover cache LRU evictions.", func(s Snapshot) int64 { return s.HoverEvictions }),
			counter("hover_purged_total", "Hover answers dropped by pattern writes.", func(s Snapshot) int64 { return s.HoverPurged }),
			counter("dedup_saves_total", "Computations avoided by joining in-flight work.", func(s Snapshot) int64 { return s.DedupSaves }),
			counter("extractions_total", "Extraction pipeline runs.", func(s Snapshot) int64 { return s.Extractions }),
			counter("extraction_success_total", "Extractions classified as success.", func(s Snapshot) int64 { return s.Successes }),
			counter("extraction_partial_total", "Extractions classified as partial success.", func(s Snapshot) int64 { return s.Partials }),
			counter("extraction_fallback_total", "Extractions served by the fallback strategy.", func(s Snapshot) int64 { return s.Fallbacks }),
			counter("extraction_failed_total", "Extractions that failed outright.", func(s Snapshot) int64 { return s.Failures }),
			counter("stale_writes_total", "Pattern writes dropped as older than the cached version.", func(s Snapshot) int64 { return s.StaleWrites }),
			counter("unchanged_updates_total", "Updates skipped because content and version were unchanged.", func(s Snapshot) int64 { return s.Unchanged }),
			counter("slow_operations_total", "Operations that exceeded their latency budget.", func(s Snapshot) int64 { return s.SlowOps }),
			counter("under_load_observations_total", "Times the engine reported itself under load.", func(s Snapshot) int64 { return s.UnderLoad }),
			gauge("pattern_entries", "Files with cached patterns.", func(s Snapshot) float64 { return float64(s.PatternEntries) }),
			gauge("hover_entries", "Cached hover answers.", func(s Snapshot) float64 { return float64(s.HoverEntries) }),
			gauge("extraction_permits_in_use", "Extraction permits currently held.", func(s Snapshot) float64 { return float64(s.ExtractionInUse) }),
			gauge("hover_permits_in_use", "Hover permits currently held.", func(s Snapshot) float64 { return float64(s.HoverInUse) }),
			gauge("in_flight", "Deduplicated computations currently running.", func(s Snapshot) float64 { return float64(s.InFlight) }),
			gauge("under_load", "1 when either permit pool is below its low-water mark.", func(s Snapshot) float64 {
				if s.LoadNow {
					return 1
				}
				return 0
			}),
		},
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.valueType, m.value(snap))
	}
}
