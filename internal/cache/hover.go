package cache

import (
	"github.com/standardbeagle/bladelsp/internal/types"
)

// HoverKey identifies one hover lookup. Answers are only valid for the
// file version they were computed against.
type HoverKey struct {
	File    types.FileID
	Line    uint32
	Column  uint32
	Version types.FileVersion
}

func NewHoverKey(file types.FileID, pos types.Position, version types.FileVersion) HoverKey {
	return HoverKey{File: file, Line: pos.Line, Column: pos.Column, Version: version}
}

// HoverCache memoizes hover answers. A nil answer is a valid cached result
// meaning nothing to show at that position.
type HoverCache struct {
	lru *LRU[HoverKey, *types.HoverAnswer]
}

func NewHoverCache(capacity int) *HoverCache {
	return &HoverCache{lru: NewLRU[HoverKey, *types.HoverAnswer](capacity, nil)}
}

// Get returns the cached answer and whether the key was present
func (c *HoverCache) Get(key HoverKey) (*types.HoverAnswer, bool) {
	return c.lru.Get(key)
}

func (c *HoverCache) Put(key HoverKey, answer *types.HoverAnswer) {
	c.lru.Put(key, answer)
}

// PurgeFile drops every answer for file across all versions
func (c *HoverCache) PurgeFile(file types.FileID) int {
	return c.lru.RemoveFunc(func(k HoverKey, _ *types.HoverAnswer) bool {
		return k.File == file
	})
}

func (c *HoverCache) Clear() { c.lru.Clear() }

func (c *HoverCache) Len() int { return c.lru.Len() }

func (c *HoverCache) Evictions() int64 { return c.lru.Evictions() }
