package extract

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/standardbeagle/bladelsp/internal/config"
	"github.com/standardbeagle/bladelsp/internal/debug"
	blerrors "github.com/standardbeagle/bladelsp/internal/errors"
	"github.com/standardbeagle/bladelsp/internal/filetype"
	"github.com/standardbeagle/bladelsp/internal/types"
)

// FallbackSuggestion is attached to the error recorded when the regex
// strategy stands in for the structured one.
const FallbackSuggestion = "fallback extraction in use"

// Pipeline runs the structured strategy and degrades to the fallback
// strategy when it fails.
type Pipeline struct {
	Structured     Strategy // nil runs Fallback as the primary strategy
	Fallback       Strategy
	MinContentSize int
	MaxFileSize    int64
}

// NewPipeline builds the default pipeline from extraction settings.
func NewPipeline(cfg config.Extraction) *Pipeline {
	p := &Pipeline{
		Fallback:       NewRegexStrategy(),
		MinContentSize: cfg.MinContentSize,
		MaxFileSize:    cfg.MaxFileSize,
	}
	if !cfg.DisableStructured {
		p.Structured = NewStructuredStrategy(cfg.MaxSyntaxErrors)
	}
	return p
}

// Run classifies one extraction of content. It never panics and never
// returns nil.
func (p *Pipeline) Run(content []byte, kind filetype.Kind) Outcome {
	if p.MaxFileSize > 0 && int64(len(content)) > p.MaxFileSize {
		err := blerrors.NewParseError(blerrors.KindFileTooLarge,
			fmt.Sprintf("file is %d bytes, limit is %d", len(content), p.MaxFileSize)).
			WithSuggestion("increase extraction.max_file_size")
		return Failed{Err: err}
	}

	if len(content) < p.MinContentSize {
		return Success{Set: types.NewPatternSet()}
	}

	var warnings []*blerrors.ParseError
	if !utf8.Valid(content) {
		var line, col int
		content, line, col = sanitizeUTF8(content)
		warnings = append(warnings, blerrors.NewParseError(blerrors.KindEncoding, "invalid UTF-8 replaced").
			At(line, col).
			WithRecoverable(true))
	}

	if p.Structured == nil {
		set, err := safeExtract(p.Fallback, content, kind)
		if err != nil {
			return failed(p.Fallback, err, warnings)
		}
		return classify(set, err, warnings)
	}

	set, err := safeExtract(p.Structured, content, kind)
	var partial *blerrors.PartialParseError
	if err == nil || errors.As(err, &partial) && set != nil {
		return classify(set, err, warnings)
	}

	crash := blerrors.NewParserCrash(p.Structured.Name(), err).
		WithRecoverable(true).
		WithSuggestion(FallbackSuggestion)
	debug.LogExtract("structured strategy failed, using %s: %v\n", nameOf(p.Fallback), err)

	if p.Fallback == nil {
		return Failed{Err: crash, Warnings: warnings}
	}
	fallbackSet, ferr := safeExtract(p.Fallback, content, kind)
	if ferr != nil {
		return failed(p.Fallback, ferr, warnings)
	}
	return Fallback{Set: fallbackSet, Err: crash, Warnings: warnings}
}

func classify(set types.PatternSet, err error, warnings []*blerrors.ParseError) Outcome {
	var partial *blerrors.PartialParseError
	if errors.As(err, &partial) {
		warnings = append(warnings, partial.Errors...)
	}
	if len(warnings) > 0 {
		return PartialSuccess{Set: set, Errs: warnings}
	}
	return Success{Set: set}
}

func failed(s Strategy, err error, warnings []*blerrors.ParseError) Outcome {
	pe := blerrors.NewParserCrash(nameOf(s), err)
	if errors.Is(err, ErrUnsupportedType) {
		pe.Message = "no extraction strategy supports this file type"
	}
	return Failed{Err: pe, Warnings: warnings}
}

// safeExtract runs a strategy and converts panics into errors.
func safeExtract(s Strategy, content []byte, kind filetype.Kind) (set types.PatternSet, err error) {
	if s == nil {
		return nil, ErrUnsupportedType
	}
	if !s.Supports(kind) {
		return nil, ErrUnsupportedType
	}
	defer func() {
		if r := recover(); r != nil {
			set = nil
			err = fmt.Errorf("%s strategy panicked: %v", s.Name(), r)
		}
	}()
	return s.Extract(content, kind)
}

func nameOf(s Strategy) string {
	if s == nil {
		return "none"
	}
	return s.Name()
}

// sanitizeUTF8 replaces each byte of an invalid sequence with '?' so byte
// offsets are preserved. It returns the position of the first replacement.
func sanitizeUTF8(content []byte) ([]byte, int, int) {
	out := make([]byte, len(content))
	copy(out, content)
	firstLine, firstCol := -1, -1
	line, lineStart := 0, 0
	for i := 0; i < len(out); {
		if out[i] == '\n' {
			line++
			lineStart = i + 1
			i++
			continue
		}
		r, size := utf8.DecodeRune(out[i:])
		if r == utf8.RuneError && size <= 1 {
			if firstLine < 0 {
				firstLine, firstCol = line, i-lineStart
			}
			out[i] = '?'
			i++
			continue
		}
		i += size
	}
	return out, firstLine, firstCol
}
