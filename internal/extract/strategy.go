// Package extract turns Blade and PHP source text into located pattern facts.
//
// Two strategies are provided: a structured one built on tree-sitter and a
// line-oriented regex scanner used as a fallback. Pipeline runs them in
// order and classifies the result as an Outcome.
package extract

import (
	"errors"

	"github.com/standardbeagle/bladelsp/internal/filetype"
	"github.com/standardbeagle/bladelsp/internal/types"
)

// ErrUnsupportedType is returned by strategies that cannot handle a file kind.
var ErrUnsupportedType = errors.New("unsupported file type")

// Strategy produces a PatternSet from file content. Implementations must be
// safe for concurrent use and must not retain content.
//
// A strategy may return a non-nil set together with a
// *errors.PartialParseError when the content was only partly understood.
type Strategy interface {
	Name() string
	Supports(kind filetype.Kind) bool
	Extract(content []byte, kind filetype.Kind) (types.PatternSet, error)
}

// Func adapts a plain function to the Strategy interface.
type Func struct {
	StrategyName string
	Kinds        []filetype.Kind // nil supports every kind
	Fn           func(content []byte, kind filetype.Kind) (types.PatternSet, error)
}

func (f Func) Name() string { return f.StrategyName }

func (f Func) Supports(kind filetype.Kind) bool {
	if f.Kinds == nil {
		return true
	}
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (f Func) Extract(content []byte, kind filetype.Kind) (types.PatternSet, error) {
	return f.Fn(content, kind)
}
