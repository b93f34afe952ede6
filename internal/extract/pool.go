package extract

import (
	"sync"
	"sync/atomic"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// parserPool recycles tree-sitter parsers for one grammar. Parsers are not
// safe for concurrent use, so each Extract call leases its own.
type parserPool struct {
	lang   *sitter.Language
	pool   sync.Pool
	leased atomic.Int64
}

func newParserPool(lang *sitter.Language) *parserPool {
	p := &parserPool{lang: lang}
	p.pool = sync.Pool{
		New: func() any {
			sp := sitter.NewParser()
			if err := sp.SetLanguage(lang); err != nil {
				sp.Close()
				return nil
			}
			return sp
		},
	}
	return p
}

func (p *parserPool) get() *sitter.Parser {
	sp, _ := p.pool.Get().(*sitter.Parser)
	if sp != nil {
		p.leased.Add(1)
	}
	return sp
}

// put resets sp so no state from the previous parse is retained.
func (p *parserPool) put(sp *sitter.Parser) {
	if sp == nil {
		return
	}
	p.leased.Add(-1)
	sp.Reset()
	p.pool.Put(sp)
}
