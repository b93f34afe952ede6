// Package cache holds the version-stamped pattern and hover caches and the
// correlator that keeps them consistent.
package cache

import (
	"time"

	"github.com/cespare/xxhash/v2"

	blerrors "github.com/standardbeagle/bladelsp/internal/errors"
	"github.com/standardbeagle/bladelsp/internal/types"
)

// ContentHash fingerprints file content for change detection
func ContentHash(content []byte) uint64 {
	return xxhash.Sum64(content)
}

// PatternEntry is the cached extraction result for one file.
type PatternEntry struct {
	Version     types.FileVersion
	ContentHash uint64
	Set         types.PatternSet
	Errors      []*blerrors.ParseError
	Status      string // outcome of the extraction that produced Set
	Degraded    bool   // produced by the fallback strategy or failed outright
	CreatedAt   time.Time

	// Gen is assigned by the Correlator on publish and changes on every
	// write for the file.
	Gen uint64
}

// PatternCache maps files to their latest extracted PatternSet.
type PatternCache struct {
	lru *LRU[types.FileID, PatternEntry]
}

func NewPatternCache(capacity int) *PatternCache {
	return &PatternCache{lru: NewLRU[types.FileID, PatternEntry](capacity, nil)}
}

// Get returns a copy of the entry for file when it was extracted from
// exactly version.
func (c *PatternCache) Get(file types.FileID, version types.FileVersion) (PatternEntry, bool) {
	entry, ok := c.lru.Get(file)
	if !ok || entry.Version != version {
		return PatternEntry{}, false
	}
	entry.Set = entry.Set.Clone()
	return entry, true
}

// Latest returns the entry for file regardless of version without marking
// it as used. The set is shared and must not be modified.
func (c *PatternCache) Latest(file types.FileID) (PatternEntry, bool) {
	return c.lru.Peek(file)
}

// Current returns the entry for file regardless of version and marks it as
// used. The set is shared and must not be modified.
func (c *PatternCache) Current(file types.FileID) (PatternEntry, bool) {
	return c.lru.Get(file)
}

// Put stores entry unconditionally
func (c *PatternCache) Put(file types.FileID, entry PatternEntry) {
	if entry.Set == nil {
		entry.Set = types.NewPatternSet()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	c.lru.Put(file, entry)
}

// PutIfNotOlder stores entry unless a newer version is already cached.
// Equal versions replace the cached entry.
func (c *PatternCache) PutIfNotOlder(file types.FileID, entry PatternEntry) bool {
	if cur, ok := c.lru.Peek(file); ok && cur.Version > entry.Version {
		return false
	}
	c.Put(file, entry)
	return true
}

func (c *PatternCache) Remove(file types.FileID) bool { return c.lru.Remove(file) }

func (c *PatternCache) Clear() { c.lru.Clear() }

func (c *PatternCache) Len() int { return c.lru.Len() }

func (c *PatternCache) Files() []types.FileID { return c.lru.Keys() }

func (c *PatternCache) Evictions() int64 { return c.lru.Evictions() }
