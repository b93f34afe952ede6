package extract

import (
	"bytes"
	"strings"

	"github.com/standardbeagle/bladelsp/internal/types"
)

// helperCalls maps global Laravel helper functions to the category of
// their first string argument.
var helperCalls = map[string]types.Category{
	"view":         types.CategoryView,
	"env":          types.CategoryEnv,
	"config":       types.CategoryConfig,
	"__":           types.CategoryTranslation,
	"trans":        types.CategoryTranslation,
	"trans_choice": types.CategoryTranslation,
	"asset":        types.CategoryAsset,
	"secure_asset": types.CategoryAsset,
	"mix":          types.CategoryAsset,
	"route":        types.CategoryRoute,
	"url":          types.CategoryURL,
	"secure_url":   types.CategoryURL,
	"action":       types.CategoryAction,
	"app":          types.CategoryBinding,
	"resolve":      types.CategoryBinding,
	"middleware":   types.CategoryMiddleware,
}

// staticCalls maps facade calls to the category of their first string
// argument. middleware() is matched on any receiver instead.
var staticCalls = map[string]types.Category{
	"View::make":   types.CategoryView,
	"View::exists": types.CategoryView,
	"Config::get":  types.CategoryConfig,
	"Lang::get":    types.CategoryTranslation,
	"App::make":    types.CategoryBinding,
	"Vite::asset":  types.CategoryAsset,
}

type directiveRef struct {
	category types.Category
	arg      int // index of the argument naming the reference
}

// directiveRefs lists directives whose arguments reference a view,
// component or other named resource.
var directiveRefs = map[string]directiveRef{
	"extends":       {types.CategoryView, 0},
	"include":       {types.CategoryView, 0},
	"includeIf":     {types.CategoryView, 0},
	"includeFirst":  {types.CategoryView, 0},
	"each":          {types.CategoryView, 0},
	"includeWhen":   {types.CategoryView, 1},
	"includeUnless": {types.CategoryView, 1},
	"livewire":      {types.CategoryLivewire, 0},
	"component":     {types.CategoryComponent, 0},
	"slot":          {types.CategorySlot, 0},
	"lang":          {types.CategoryTranslation, 0},
	"choice":        {types.CategoryTranslation, 0},
	"vite":          {types.CategoryAsset, 0},
}

// loopDirectives take arguments that are not standalone PHP expressions.
var loopDirectives = map[string]bool{
	"foreach": true,
	"forelse": true,
	"for":     true,
	"while":   true,
}

type span struct{ start, end int }

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func isNameStart(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// skipString returns the offset just past the quoted string starting at i.
func skipString(src []byte, i, limit int) int {
	q := src[i]
	for j := i + 1; j < limit; j++ {
		switch src[j] {
		case '\\':
			j++
		case q:
			return j + 1
		}
	}
	return limit
}

// matchParen returns the offset of the parenthesis closing the one at open,
// or -1 when it is not closed before limit.
func matchParen(src []byte, open, limit int) int {
	depth := 0
	for i := open; i < limit; i++ {
		switch src[i] {
		case '\'', '"':
			i = skipString(src, i, limit) - 1
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitArgs splits src[start:end] on top-level commas and trims each part.
func splitArgs(src []byte, start, end int) []span {
	var out []span
	depth := 0
	partStart := start
	for i := start; i < end; i++ {
		switch src[i] {
		case '\'', '"':
			i = skipString(src, i, end) - 1
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, trimSpan(src, partStart, i))
				partStart = i + 1
			}
		}
	}
	if last := trimSpan(src, partStart, end); last.end > last.start || len(out) > 0 {
		out = append(out, last)
	}
	return out
}

func trimSpan(src []byte, start, end int) span {
	for start < end && isSpace(src[start]) {
		start++
	}
	for end > start && isSpace(src[end-1]) {
		end--
	}
	return span{start, end}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// stringLiteral reports the content span of a single- or double-quoted
// literal that makes up the whole of s.
func stringLiteral(src []byte, s span) (span, bool) {
	if s.end-s.start < 2 {
		return span{}, false
	}
	q := src[s.start]
	if q != '\'' && q != '"' || src[s.end-1] != q {
		return span{}, false
	}
	if skipString(src, s.start, s.end) != s.end {
		return span{}, false
	}
	return span{s.start + 1, s.end - 1}, true
}

// arrayStrings returns the string literals of a [..] array literal.
func arrayStrings(src []byte, s span) []span {
	if s.end-s.start < 2 || src[s.start] != '[' || src[s.end-1] != ']' {
		return nil
	}
	var out []span
	for _, el := range splitArgs(src, s.start+1, s.end-1) {
		if lit, ok := stringLiteral(src, el); ok {
			out = append(out, lit)
		}
	}
	return out
}

// argFacts builds facts for the referenced string arguments of a call.
// args spans the text between the call's parentheses.
func argFacts(li lineIndex, src []byte, cat types.Category, argIdx int, args span, detail string) []types.PatternFact {
	parts := splitArgs(src, args.start, args.end)
	if argIdx >= len(parts) {
		return nil
	}

	var lits []span
	if lit, ok := stringLiteral(src, parts[argIdx]); ok {
		lits = append(lits, lit)
	} else if cat == types.CategoryMiddleware || cat == types.CategoryAsset || cat == types.CategoryView {
		lits = arrayStrings(src, parts[argIdx])
	}

	if len(lits) == 0 && cat == types.CategoryBinding {
		if name, ok := classConstant(src, parts[argIdx]); ok {
			f := li.fact(cat, strings.TrimPrefix(string(src[name.start:name.end]), "\\"), name.start, name.end)
			f.Detail = "class"
			return []types.PatternFact{f}
		}
	}

	out := make([]types.PatternFact, 0, len(lits))
	for _, lit := range lits {
		f := li.fact(cat, string(src[lit.start:lit.end]), lit.start, lit.end)
		f.Detail = detail
		if cat == types.CategoryEnv && len(parts) > 1 {
			f.HasDefault = true
		}
		out = append(out, f)
	}
	return out
}

// classConstant matches Foo::class and returns the span of Foo.
func classConstant(src []byte, s span) (span, bool) {
	text := src[s.start:s.end]
	if !bytes.HasSuffix(text, []byte("::class")) {
		return span{}, false
	}
	name := span{s.start, s.end - len("::class")}
	if name.end <= name.start {
		return span{}, false
	}
	for _, b := range src[name.start:name.end] {
		if !isWordByte(b) && b != '\\' {
			return span{}, false
		}
	}
	return name, true
}
