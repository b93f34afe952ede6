// Package metrics aggregates engine counters and exports them.
package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/standardbeagle/bladelsp/internal/extract"
)

// Stats holds the engine's monotonic counters. All methods are safe for
// concurrent use.
type Stats struct {
	patternHits   atomic.Int64
	patternMisses atomic.Int64
	hoverHits     atomic.Int64
	hoverMisses   atomic.Int64
	hoverPurged   atomic.Int64
	dedupSaves    atomic.Int64
	extractions   atomic.Int64
	outcomes      [4]atomic.Int64 // indexed by extract.Status
	staleWrites   atomic.Int64
	unchanged     atomic.Int64
	slowOps       atomic.Int64
	underLoad     atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) PatternHit()   { s.patternHits.Add(1) }
func (s *Stats) PatternMiss()  { s.patternMisses.Add(1) }
func (s *Stats) HoverHit()     { s.hoverHits.Add(1) }
func (s *Stats) HoverMiss()    { s.hoverMisses.Add(1) }
func (s *Stats) DedupSave()    { s.dedupSaves.Add(1) }
func (s *Stats) StaleWrite()   { s.staleWrites.Add(1) }
func (s *Stats) Unchanged()    { s.unchanged.Add(1) }
func (s *Stats) SlowOp()       { s.slowOps.Add(1) }
func (s *Stats) UnderLoadHit() { s.underLoad.Add(1) }

func (s *Stats) HoverPurged(n int) { s.hoverPurged.Add(int64(n)) }

// Extraction records one pipeline run and its outcome
func (s *Stats) Extraction(status extract.Status) {
	s.extractions.Add(1)
	if int(status) >= 0 && int(status) < len(s.outcomes) {
		s.outcomes[status].Add(1)
	}
}

// Snapshot is a point-in-time copy of the counters plus the gauges the
// engine fills in from its caches and permit pools.
type Snapshot struct {
	PatternHits   int64 `json:"pattern_hits"`
	PatternMisses int64 `json:"pattern_misses"`
	HoverHits     int64 `json:"hover_hits"`
	HoverMisses   int64 `json:"hover_misses"`
	HoverPurged   int64 `json:"hover_purged"`
	DedupSaves    int64 `json:"dedup_saves"`
	Extractions   int64 `json:"extractions"`
	Successes     int64 `json:"successes"`
	Partials      int64 `json:"partials"`
	Fallbacks     int64 `json:"fallbacks"`
	Failures      int64 `json:"failures"`
	StaleWrites   int64 `json:"stale_writes"`
	Unchanged     int64 `json:"unchanged_updates"`
	SlowOps       int64 `json:"slow_operations"`
	UnderLoad     int64 `json:"under_load_observations"`

	PatternEntries   int   `json:"pattern_entries"`
	PatternEvictions int64 `json:"pattern_evictions"`
	HoverEntries     int   `json:"hover_entries"`
	HoverEvictions   int64 `json:"hover_evictions"`
	ExtractionInUse  int64 `json:"extraction_permits_in_use"`
	HoverInUse       int64 `json:"hover_permits_in_use"`
	InFlight         int64 `json:"in_flight"`
	LoadNow          bool  `json:"under_load"`
}

// Snapshot copies the counters. Gauge fields are left zero.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		PatternHits:   s.patternHits.Load(),
		PatternMisses: s.patternMisses.Load(),
		HoverHits:     s.hoverHits.Load(),
		HoverMisses:   s.hoverMisses.Load(),
		HoverPurged:   s.hoverPurged.Load(),
		DedupSaves:    s.dedupSaves.Load(),
		Extractions:   s.extractions.Load(),
		Successes:     s.outcomes[extract.StatusSuccess].Load(),
		Partials:      s.outcomes[extract.StatusPartial].Load(),
		Fallbacks:     s.outcomes[extract.StatusFallback].Load(),
		Failures:      s.outcomes[extract.StatusFailed].Load(),
		StaleWrites:   s.staleWrites.Load(),
		Unchanged:     s.unchanged.Load(),
		SlowOps:       s.slowOps.Load(),
		UnderLoad:     s.underLoad.Load(),
	}
}

func (s Snapshot) PatternHitRate() float64 { return rate(s.PatternHits, s.PatternMisses) }
func (s Snapshot) HoverHitRate() float64   { return rate(s.HoverHits, s.HoverMisses) }

func rate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// FormatAsText renders the snapshot for the performance report
func (s Snapshot) FormatAsText() string {
	var sb strings.Builder

	sb.WriteString("Caches:\n")
	sb.WriteString(fmt.Sprintf("  Patterns:       %d entries, %d hits, %d misses (%.1f%%), %d evictions\n",
		s.PatternEntries, s.PatternHits, s.PatternMisses, s.PatternHitRate()*100, s.PatternEvictions))
	sb.WriteString(fmt.Sprintf("  Hovers:         %d entries, %d hits, %d misses (%.1f%%), %d evictions, %d purged\n",
		s.HoverEntries, s.HoverHits, s.HoverMisses, s.HoverHitRate()*100, s.HoverEvictions, s.HoverPurged))

	sb.WriteString("Extraction:\n")
	sb.WriteString(fmt.Sprintf("  Runs:           %d (success %d, partial %d, fallback %d, failed %d)\n",
		s.Extractions, s.Successes, s.Partials, s.Fallbacks, s.Failures))
	sb.WriteString(fmt.Sprintf("  Dedup saves:    %d\n", s.DedupSaves))
	sb.WriteString(fmt.Sprintf("  Unchanged:      %d\n", s.Unchanged))
	sb.WriteString(fmt.Sprintf("  Stale writes:   %d\n", s.StaleWrites))

	sb.WriteString("Load:\n")
	sb.WriteString(fmt.Sprintf("  Permits in use: extraction %d, hover %d\n", s.ExtractionInUse, s.HoverInUse))
	sb.WriteString(fmt.Sprintf("  In flight:      %d\n", s.InFlight))
	sb.WriteString(fmt.Sprintf("  Under load:     %t (%d observations)\n", s.LoadNow, s.UnderLoad))
	sb.WriteString(fmt.Sprintf("  Slow ops:       %d\n", s.SlowOps))

	return sb.String()
}
