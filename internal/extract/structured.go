package extract

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_html "github.com/tree-sitter/tree-sitter-html/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"

	blerrors "github.com/standardbeagle/bladelsp/internal/errors"
	"github.com/standardbeagle/bladelsp/internal/filetype"
	"github.com/standardbeagle/bladelsp/internal/types"
)

const phpOpenTag = "<?php "

var (
	phpLanguage  = sitter.NewLanguage(tree_sitter_php.LanguagePHP())
	htmlLanguage = sitter.NewLanguage(tree_sitter_html.Language())
)

// StructuredStrategy parses PHP with tree-sitter-php and Blade templates
// with a Blade lexer, tree-sitter-html for component tags and
// tree-sitter-php for embedded expressions.
type StructuredStrategy struct {
	php             *parserPool
	html            *parserPool
	maxSyntaxErrors int
}

// NewStructuredStrategy creates a structured strategy reporting at most
// maxSyntaxErrors syntax errors per file.
func NewStructuredStrategy(maxSyntaxErrors int) *StructuredStrategy {
	if maxSyntaxErrors <= 0 {
		maxSyntaxErrors = 10
	}
	return &StructuredStrategy{
		php:             newParserPool(phpLanguage),
		html:            newParserPool(htmlLanguage),
		maxSyntaxErrors: maxSyntaxErrors,
	}
}

func (s *StructuredStrategy) Name() string { return "structured" }

func (s *StructuredStrategy) Supports(kind filetype.Kind) bool {
	return kind == filetype.Blade || kind == filetype.PHP
}

func (s *StructuredStrategy) Extract(content []byte, kind filetype.Kind) (types.PatternSet, error) {
	switch kind {
	case filetype.PHP:
		return s.extractPHP(content)
	case filetype.Blade:
		return s.extractBlade(content)
	}
	return nil, ErrUnsupportedType
}

func (s *StructuredStrategy) extractPHP(content []byte) (types.PatternSet, error) {
	li := newLineIndex(content)
	set := types.NewPatternSet()

	var syntaxErrs []*blerrors.ParseError
	err := s.parse(s.php, content, func(root *sitter.Node) {
		w := phpWalker{src: content, li: li, set: set}
		w.walk(root)
		syntaxErrs = s.syntaxErrors(root, li, 0, len(content))
	})
	if err != nil {
		return nil, err
	}
	return finish(set, syntaxErrs)
}

func (s *StructuredStrategy) extractBlade(content []byte) (types.PatternSet, error) {
	li := newLineIndex(content)
	set := types.NewPatternSet()
	sc := scanBlade(content, li)
	for _, f := range sc.facts {
		set.Add(f)
	}

	var syntaxErrs []*blerrors.ParseError
	if sc.hasPHP {
		buf := make([]byte, 0, len(phpOpenTag)+len(sc.php)+2)
		buf = append(buf, phpOpenTag...)
		buf = append(buf, sc.php...)
		buf = append(buf, '\n', ';')
		err := s.parse(s.php, buf, func(root *sitter.Node) {
			// buf[len(phpOpenTag):] shares byte offsets with content
			w := phpWalker{src: buf[len(phpOpenTag):], base: len(phpOpenTag), li: li, set: set}
			w.walk(root)
			syntaxErrs = s.syntaxErrors(root, li, len(phpOpenTag), len(content))
		})
		if err != nil {
			return nil, err
		}
	}

	err := s.parse(s.html, sc.markup, func(root *sitter.Node) {
		walkMarkup(root, sc.markup, li, set)
	})
	if err != nil {
		return nil, err
	}
	return finish(set, syntaxErrs)
}

func finish(set types.PatternSet, syntaxErrs []*blerrors.ParseError) (types.PatternSet, error) {
	set.Sort()
	if len(syntaxErrs) > 0 {
		return set, &blerrors.PartialParseError{Errors: syntaxErrs}
	}
	return set, nil
}

func (s *StructuredStrategy) parse(pool *parserPool, src []byte, visit func(root *sitter.Node)) error {
	parser := pool.get()
	if parser == nil {
		return fmt.Errorf("tree-sitter parser unavailable")
	}
	defer pool.put(parser)

	tree := parser.Parse(src, nil)
	if tree == nil {
		return fmt.Errorf("tree-sitter returned no tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return fmt.Errorf("tree-sitter returned no root node")
	}
	visit(root)
	return nil
}

// syntaxErrors collects ERROR and MISSING nodes. base is subtracted from
// node offsets and positions are clamped to the original content length.
func (s *StructuredStrategy) syntaxErrors(root *sitter.Node, li lineIndex, base, size int) []*blerrors.ParseError {
	if !root.HasError() {
		return nil
	}
	var out []*blerrors.ParseError
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if len(out) >= s.maxSyntaxErrors {
			return
		}
		if n.IsError() || n.IsMissing() {
			off := int(n.StartByte()) - base
			off = max(0, min(off, size))
			pos := li.position(off)
			msg := "unexpected syntax"
			if n.IsMissing() {
				msg = fmt.Sprintf("missing %s", n.Kind())
			}
			out = append(out, blerrors.NewSyntaxError(int(pos.Line), int(pos.Column), msg))
			if n.IsMissing() {
				return
			}
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			child := n.Child(i)
			if child != nil && (child.HasError() || child.IsMissing()) {
				visit(child)
			}
		}
	}
	visit(root)
	return out
}

// phpWalker records helper, facade and middleware calls. src shares byte
// offsets with the original content once base is subtracted from node
// offsets.
type phpWalker struct {
	src  []byte
	base int
	li   lineIndex
	set  types.PatternSet
}

func (w *phpWalker) span(n *sitter.Node) span {
	return span{int(n.StartByte()) - w.base, int(n.EndByte()) - w.base}
}

func (w *phpWalker) text(n *sitter.Node) string {
	s := w.span(n)
	if s.start < 0 || s.end > len(w.src) || s.start > s.end {
		return ""
	}
	return string(w.src[s.start:s.end])
}

func (w *phpWalker) walk(n *sitter.Node) {
	switch n.Kind() {
	case "function_call_expression":
		if fn := n.ChildByFieldName("function"); fn != nil {
			name := strings.TrimPrefix(w.text(fn), "\\")
			if cat, ok := helperCalls[name]; ok {
				w.arguments(n.ChildByFieldName("arguments"), cat, name)
			}
		}
	case "scoped_call_expression":
		scope, method := n.ChildByFieldName("scope"), n.ChildByFieldName("name")
		if scope != nil && method != nil {
			class := w.text(scope)
			if i := strings.LastIndexByte(class, '\\'); i >= 0 {
				class = class[i+1:]
			}
			call := class + "::" + w.text(method)
			if cat, ok := staticCalls[call]; ok {
				w.arguments(n.ChildByFieldName("arguments"), cat, call)
			} else if w.text(method) == "middleware" {
				w.arguments(n.ChildByFieldName("arguments"), types.CategoryMiddleware, "middleware")
			}
		}
	case "member_call_expression", "nullsafe_member_call_expression":
		if method := n.ChildByFieldName("name"); method != nil && w.text(method) == "middleware" {
			w.arguments(n.ChildByFieldName("arguments"), types.CategoryMiddleware, "middleware")
		}
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		if child := n.Child(i); child != nil {
			w.walk(child)
		}
	}
}

// arguments records facts for the first argument of a call.
func (w *phpWalker) arguments(args *sitter.Node, cat types.Category, detail string) {
	if args == nil {
		return
	}
	var values []*sitter.Node
	for i := uint(0); i < args.NamedChildCount(); i++ {
		arg := args.NamedChild(i)
		if arg == nil || arg.Kind() != "argument" || arg.NamedChildCount() == 0 {
			continue
		}
		values = append(values, arg.NamedChild(arg.NamedChildCount()-1))
	}
	if len(values) == 0 || values[0] == nil {
		return
	}

	first := values[0]
	var lits []span
	switch first.Kind() {
	case "string", "encapsed_string":
		if lit, ok := w.literal(first); ok {
			lits = append(lits, lit)
		}
	case "array_creation_expression":
		if cat == types.CategoryMiddleware || cat == types.CategoryAsset || cat == types.CategoryView {
			for i := uint(0); i < first.NamedChildCount(); i++ {
				el := first.NamedChild(i)
				if el == nil || el.NamedChildCount() == 0 {
					continue
				}
				if lit, ok := w.literal(el.NamedChild(el.NamedChildCount() - 1)); ok {
					lits = append(lits, lit)
				}
			}
		}
	case "class_constant_access_expression":
		if cat == types.CategoryBinding {
			if name, ok := classConstant(w.src, w.span(first)); ok {
				f := w.li.fact(cat, strings.TrimPrefix(string(w.src[name.start:name.end]), "\\"), name.start, name.end)
				f.Detail = "class"
				w.set.Add(f)
			}
		}
	}

	for _, lit := range lits {
		f := w.li.fact(cat, string(w.src[lit.start:lit.end]), lit.start, lit.end)
		f.Detail = detail
		if cat == types.CategoryEnv && len(values) > 1 {
			f.HasDefault = true
		}
		w.set.Add(f)
	}
}

// literal returns the content span of a non-interpolated string node.
func (w *phpWalker) literal(n *sitter.Node) (span, bool) {
	if n == nil {
		return span{}, false
	}
	if n.Kind() == "encapsed_string" {
		for i := uint(0); i < n.NamedChildCount(); i++ {
			switch n.NamedChild(i).Kind() {
			case "string_content", "escape_sequence":
			default:
				return span{}, false
			}
		}
	} else if n.Kind() != "string" {
		return span{}, false
	}
	return stringLiteral(w.src, w.span(n))
}

// walkMarkup records component, livewire and slot tags.
func walkMarkup(n *sitter.Node, src []byte, li lineIndex, set types.PatternSet) {
	switch n.Kind() {
	case "start_tag", "self_closing_tag":
		for i := uint(0); i < n.NamedChildCount(); i++ {
			tag := n.NamedChild(i)
			if tag == nil || tag.Kind() != "tag_name" {
				continue
			}
			start, end := int(tag.StartByte()), int(tag.EndByte())
			// the HTML grammar stops tag names at '.', Blade allows x-forms.input
			for end < len(src) && (isWordByte(src[end]) || src[end] == '.' || src[end] == '-' || src[end] == ':') {
				end++
			}
			name := string(src[start:end])
			switch {
			case strings.HasPrefix(name, "x-"):
				for _, f := range tagFacts(li, src, start, end, int(n.EndByte())) {
					set.Add(f)
				}
			case strings.HasPrefix(name, "livewire:"):
				nameStart := start + len("livewire:")
				set.Add(li.fact(types.CategoryLivewire, name[len("livewire:"):], nameStart, end))
			}
			break
		}
		return
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if child := n.Child(i); child != nil {
			walkMarkup(child, src, li, set)
		}
	}
}
