package cache

import (
	"sync"

	"github.com/standardbeagle/bladelsp/internal/config"
	"github.com/standardbeagle/bladelsp/internal/debug"
	"github.com/standardbeagle/bladelsp/internal/types"
)

// Correlator owns the pattern and hover caches. Every pattern write for a
// file purges that file's hover answers before the write becomes visible,
// and hover answers computed against a superseded write are discarded.
type Correlator struct {
	mu       sync.RWMutex
	patterns *PatternCache
	hovers   *HoverCache
	policy   string
	gen      uint64
}

// Snapshot reports cache occupancy
type Snapshot struct {
	PatternEntries   int   `json:"pattern_entries"`
	PatternCapacity  int   `json:"pattern_capacity"`
	PatternEvictions int64 `json:"pattern_evictions"`
	HoverEntries     int   `json:"hover_entries"`
	HoverCapacity    int   `json:"hover_capacity"`
	HoverEvictions   int64 `json:"hover_evictions"`
}

func NewCorrelator(cfg config.Cache) *Correlator {
	policy := cfg.VersionPolicy
	if policy == "" {
		policy = config.VersionPolicyHighest
	}
	return &Correlator{
		patterns: NewPatternCache(cfg.PatternCapacity),
		hovers:   NewHoverCache(cfg.HoverCapacity),
		policy:   policy,
	}
}

// Publish stores entry for file and purges the file's hover answers. Under
// the "highest" policy a write older than the cached version is dropped and
// Publish returns false. The stored entry is returned with its Gen set,
// along with the number of hover answers purged.
func (c *Correlator) Publish(file types.FileID, entry PatternEntry) (PatternEntry, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	entry.Gen = c.gen
	if c.policy == config.VersionPolicyLast {
		c.patterns.Put(file, entry)
	} else if !c.patterns.PutIfNotOlder(file, entry) {
		debug.LogCache("dropped stale write for %s v%d\n", file, entry.Version)
		return PatternEntry{}, 0, false
	}
	n := c.hovers.PurgeFile(file)
	if n > 0 {
		debug.LogCache("purged %d hover answers for %s\n", n, file)
	}
	return entry, n, true
}

// Patterns returns a copy of the patterns for file at exactly version
func (c *Correlator) Patterns(file types.FileID, version types.FileVersion) (PatternEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.patterns.Get(file, version)
}

// Latest returns the newest entry for file. The set is shared.
func (c *Correlator) Latest(file types.FileID) (PatternEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.patterns.Latest(file)
}

// Current is Latest for readers answering a query. It counts as a use of
// the file's entry for eviction.
func (c *Correlator) Current(file types.FileID) (PatternEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.patterns.Current(file)
}

func (c *Correlator) Hover(key HoverKey) (*types.HoverAnswer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hovers.Get(key)
}

// StoreHover caches answer if the patterns it was computed from are still
// current, identified by their Gen.
func (c *Correlator) StoreHover(key HoverKey, answer *types.HoverAnswer, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.patterns.Latest(key.File)
	if !ok || cur.Gen != gen || cur.Version != key.Version {
		return false
	}
	c.hovers.Put(key, answer)
	return true
}

// Invalidate drops everything cached for file
func (c *Correlator) Invalidate(file types.FileID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patterns.Remove(file)
	c.hovers.PurgeFile(file)
}

func (c *Correlator) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patterns.Clear()
	c.hovers.Clear()
}

// Files lists files with cached patterns, most recently used first
func (c *Correlator) Files() []types.FileID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.patterns.Files()
}

func (c *Correlator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		PatternEntries:   c.patterns.Len(),
		PatternCapacity:  c.patterns.lru.Capacity(),
		PatternEvictions: c.patterns.Evictions(),
		HoverEntries:     c.hovers.Len(),
		HoverCapacity:    c.hovers.lru.Capacity(),
		HoverEvictions:   c.hovers.Evictions(),
	}
}
