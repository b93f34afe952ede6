package engine

import (
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/bladelsp/internal/cache"
	"github.com/standardbeagle/bladelsp/internal/filetype"
	"github.com/standardbeagle/bladelsp/internal/types"
)

// Document is the latest content pushed for a file
type Document struct {
	File     types.FileID
	Content  []byte
	Version  types.FileVersion
	FastHash uint64
	Kind     filetype.Kind
}

// DocumentStore keeps open documents so queries can extract on demand.
type DocumentStore struct {
	docs  sync.Map // map[types.FileID]*Document
	mu    sync.Mutex
	bytes atomic.Int64
	count atomic.Int64
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{}
}

// Put stores doc. When keepHighest is set a document older than the stored
// one is ignored and Put returns false.
func (s *DocumentStore) Put(doc *Document, keepHighest bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.docs.Load(doc.File); ok {
		old := prev.(*Document)
		if keepHighest && old.Version > doc.Version {
			return false
		}
		s.bytes.Add(-int64(len(old.Content)))
	} else {
		s.count.Add(1)
	}
	s.docs.Store(doc.File, doc)
	s.bytes.Add(int64(len(doc.Content)))
	return true
}

func (s *DocumentStore) Get(file types.FileID) (*Document, bool) {
	v, ok := s.docs.Load(file)
	if !ok {
		return nil, false
	}
	return v.(*Document), true
}

func (s *DocumentStore) Delete(file types.FileID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.docs.LoadAndDelete(file)
	if !ok {
		return false
	}
	s.count.Add(-1)
	s.bytes.Add(-int64(len(v.(*Document).Content)))
	return true
}

// Files returns every stored file in no particular order
func (s *DocumentStore) Files() []types.FileID {
	var out []types.FileID
	s.docs.Range(func(k, _ any) bool {
		out = append(out, k.(types.FileID))
		return true
	})
	return out
}

func (s *DocumentStore) Len() int { return int(s.count.Load()) }

// Bytes returns the total size of stored content
func (s *DocumentStore) Bytes() int64 { return s.bytes.Load() }

func newDocument(file types.FileID, content []byte, version types.FileVersion, kind filetype.Kind) *Document {
	owned := make([]byte, len(content))
	copy(owned, content)
	return &Document{
		File:     file,
		Content:  owned,
		Version:  version,
		FastHash: cache.ContentHash(owned),
		Kind:     kind,
	}
}
