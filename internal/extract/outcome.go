package extract

import (
	blerrors "github.com/standardbeagle/bladelsp/internal/errors"
	"github.com/standardbeagle/bladelsp/internal/types"
)

// Status names the variant of an Outcome.
type Status int

const (
	StatusSuccess Status = iota
	StatusPartial
	StatusFallback
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartial:
		return "partial"
	case StatusFallback:
		return "fallback"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the classified result of one extraction. The concrete types
// are Success, PartialSuccess, Fallback and Failed; switch on them with a
// type switch. Patterns never returns nil: Failed yields an empty set so
// the cache always records that the version was analyzed.
type Outcome interface {
	Status() Status
	Patterns() types.PatternSet
	Errors() []*blerrors.ParseError
	outcome()
}

type Success struct {
	Set types.PatternSet
}

type PartialSuccess struct {
	Set  types.PatternSet
	Errs []*blerrors.ParseError
}

// Fallback carries regex output after the structured strategy failed.
// Warnings holds problems unrelated to the failure, such as encoding repairs.
type Fallback struct {
	Set      types.PatternSet
	Err      *blerrors.ParseError
	Warnings []*blerrors.ParseError
}

type Failed struct {
	Err      *blerrors.ParseError
	Warnings []*blerrors.ParseError
}

func (Success) outcome()        {}
func (PartialSuccess) outcome() {}
func (Fallback) outcome()       {}
func (Failed) outcome()         {}

func (Success) Status() Status        { return StatusSuccess }
func (PartialSuccess) Status() Status { return StatusPartial }
func (Fallback) Status() Status       { return StatusFallback }
func (Failed) Status() Status         { return StatusFailed }

func (o Success) Patterns() types.PatternSet        { return nonNil(o.Set) }
func (o PartialSuccess) Patterns() types.PatternSet { return nonNil(o.Set) }
func (o Fallback) Patterns() types.PatternSet       { return nonNil(o.Set) }
func (Failed) Patterns() types.PatternSet           { return types.NewPatternSet() }

func (Success) Errors() []*blerrors.ParseError          { return nil }
func (o PartialSuccess) Errors() []*blerrors.ParseError { return o.Errs }

func (o Fallback) Errors() []*blerrors.ParseError {
	return append([]*blerrors.ParseError{o.Err}, o.Warnings...)
}

func (o Failed) Errors() []*blerrors.ParseError {
	return append([]*blerrors.ParseError{o.Err}, o.Warnings...)
}

func nonNil(s types.PatternSet) types.PatternSet {
	if s == nil {
		return types.NewPatternSet()
	}
	return s
}
