package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/standardbeagle/bladelsp/internal/filetype"
	"github.com/standardbeagle/bladelsp/internal/types"
)

var (
	directiveRe = regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z_]\w*)`)
	helperRe    = regexp.MustCompile(`(->|::)?\b(view|env|config|__|trans_choice|trans|asset|secure_asset|mix|route|url|secure_url|action|app|resolve|middleware)\s*\(`)
	staticRe    = regexp.MustCompile(`\b(View|Config|Lang|App|Vite)::(make|exists|get|asset)\s*\(`)
	componentRe = regexp.MustCompile(`<(x-[\w.\-:]+)`)
	livewireRe  = regexp.MustCompile(`<livewire:([\w.\-]+)`)
	slotNameRe  = regexp.MustCompile(`\sname\s*=\s*["']([^"']+)["']`)
)

// RegexStrategy scans content line by line. It does not understand
// comments or nesting and is meant to keep facts available when the
// structured strategy fails.
type RegexStrategy struct{}

// NewRegexStrategy returns the line scanner.
func NewRegexStrategy() *RegexStrategy {
	return &RegexStrategy{}
}

func (s *RegexStrategy) Name() string { return "regex" }

func (s *RegexStrategy) Supports(kind filetype.Kind) bool {
	return kind == filetype.Blade || kind == filetype.PHP
}

func (s *RegexStrategy) Extract(content []byte, kind filetype.Kind) (types.PatternSet, error) {
	if !s.Supports(kind) {
		return nil, ErrUnsupportedType
	}

	li := newLineIndex(content)
	set := types.NewPatternSet()
	for line := range li {
		start := li[line]
		end := len(content)
		if line+1 < len(li) {
			end = li[line+1]
		}
		if kind == filetype.Blade {
			scanBladeLine(set, li, content, start, end)
		}
		scanHelperCalls(set, li, content, start, end)
	}
	set.Sort()
	return set, nil
}

func scanBladeLine(set types.PatternSet, li lineIndex, src []byte, start, end int) {
	line := src[start:end]

	for _, m := range directiveRe.FindAllSubmatchIndex(line, -1) {
		at := start + m[2] - 1
		nameEnd := start + m[3]
		name := string(src[at+1 : nameEnd])
		f := li.fact(types.CategoryDirective, name, at, nameEnd)

		open := nameEnd
		for open < end && (src[open] == ' ' || src[open] == '\t') {
			open++
		}
		if open < end && src[open] == '(' {
			if closing := matchParen(src, open, end); closing > 0 {
				args := span{open + 1, closing}
				f.Detail = strings.TrimSpace(string(src[args.start:args.end]))
				if ref, ok := directiveRefs[name]; ok {
					for _, rf := range argFacts(li, src, ref.category, ref.arg, args, name) {
						set.Add(rf)
					}
				}
			}
		}
		set.Add(f)
	}

	for _, m := range componentRe.FindAllSubmatchIndex(line, -1) {
		tagStart, tagEnd := start+m[2], start+m[3]
		for _, f := range tagFacts(li, src, tagStart, tagEnd, end) {
			set.Add(f)
		}
	}

	for _, m := range livewireRe.FindAllSubmatchIndex(line, -1) {
		f := li.fact(types.CategoryLivewire, string(line[m[2]:m[3]]), start+m[2], start+m[3])
		set.Add(f)
	}
}

// tagFacts classifies an x- tag name spanning src[tagStart:tagEnd].
// limit bounds the search for a slot name attribute.
func tagFacts(li lineIndex, src []byte, tagStart, tagEnd, limit int) []types.PatternFact {
	tag := string(src[tagStart:tagEnd])
	switch {
	case tag == "x-slot":
		tail := src[tagEnd:limit]
		if gt := bytes.IndexByte(tail, '>'); gt >= 0 {
			tail = tail[:gt]
		}
		if m := slotNameRe.FindSubmatchIndex(tail); m != nil {
			f := li.fact(types.CategorySlot, string(tail[m[2]:m[3]]), tagEnd+m[2], tagEnd+m[3])
			f.Detail = tag
			return []types.PatternFact{f}
		}
		return nil
	case strings.HasPrefix(tag, "x-slot:"):
		nameStart := tagStart + len("x-slot:")
		f := li.fact(types.CategorySlot, tag[len("x-slot:"):], nameStart, tagEnd)
		f.Detail = tag
		return []types.PatternFact{f}
	}
	f := li.fact(types.CategoryComponent, strings.TrimPrefix(tag, "x-"), tagStart, tagEnd)
	f.Detail = tag
	return []types.PatternFact{f}
}

func scanHelperCalls(set types.PatternSet, li lineIndex, src []byte, start, end int) {
	line := src[start:end]

	for _, m := range helperRe.FindAllSubmatchIndex(line, -1) {
		name := string(line[m[4]:m[5]])
		if m[2] >= 0 && name != "middleware" {
			continue
		}
		open := start + m[1] - 1
		closing := matchParen(src, open, end)
		if closing < 0 {
			continue
		}
		for _, f := range argFacts(li, src, helperCalls[name], 0, span{open + 1, closing}, name) {
			set.Add(f)
		}
	}

	for _, m := range staticRe.FindAllSubmatchIndex(line, -1) {
		call := string(line[m[2]:m[3]]) + "::" + string(line[m[4]:m[5]])
		cat, ok := staticCalls[call]
		if !ok {
			continue
		}
		open := start + m[1] - 1
		closing := matchParen(src, open, end)
		if closing < 0 {
			continue
		}
		for _, f := range argFacts(li, src, cat, 0, span{open + 1, closing}, call) {
			set.Add(f)
		}
	}
}
