package types

import (
	"sort"
)

// FileID identifies a source file by its canonical location.
type FileID string

// FileVersion is the editor-supplied version of a file. Versions only
// increase for a given file and are not comparable across files.
type FileVersion int32

// Position is a 0-based line and byte column.
type Position struct {
	Line   uint32 `json:"line"`
	Column uint32 `json:"column"`
}

// Before reports whether p sorts before o.
func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Column < o.Column
}

// Category tags the kind of construct a PatternFact records.
type Category string

const (
	CategoryView        Category = "view_call"
	CategoryComponent   Category = "component"
	CategoryLivewire    Category = "livewire"
	CategorySlot        Category = "slot"
	CategoryDirective   Category = "directive"
	CategoryEnv         Category = "env_call"
	CategoryConfig      Category = "config_call"
	CategoryMiddleware  Category = "middleware"
	CategoryTranslation Category = "translation"
	CategoryAsset       Category = "asset"
	CategoryBinding     Category = "binding"
	CategoryRoute       Category = "route"
	CategoryURL         Category = "url"
	CategoryAction      Category = "action"
)

// AllCategories lists categories in display order.
var AllCategories = []Category{
	CategoryDirective,
	CategoryView,
	CategoryComponent,
	CategoryLivewire,
	CategorySlot,
	CategoryEnv,
	CategoryConfig,
	CategoryMiddleware,
	CategoryTranslation,
	CategoryAsset,
	CategoryBinding,
	CategoryRoute,
	CategoryURL,
	CategoryAction,
}

// PatternFact is one located occurrence of a recognized construct.
// The span covers lines Start.Line..End.Line inclusive and is
// end-exclusive on End.Column.
type PatternFact struct {
	Category   Category `json:"category"`
	Text       string   `json:"text"`
	Start      Position `json:"start"`
	End        Position `json:"end"`
	Detail     string   `json:"detail,omitempty"`
	HasDefault bool     `json:"has_default,omitempty"`
}

// Contains reports whether pos falls inside the fact's span.
func (f PatternFact) Contains(pos Position) bool {
	if pos.Line < f.Start.Line || pos.Line > f.End.Line {
		return false
	}
	if pos.Line == f.Start.Line && pos.Column < f.Start.Column {
		return false
	}
	if pos.Line == f.End.Line && pos.Column >= f.End.Column {
		return false
	}
	return true
}

// PatternSet maps a category to its facts ordered by start position.
type PatternSet map[Category][]PatternFact

// NewPatternSet returns an empty set.
func NewPatternSet() PatternSet {
	return make(PatternSet)
}

// Add appends a fact under its category.
func (s PatternSet) Add(f PatternFact) {
	s[f.Category] = append(s[f.Category], f)
}

// Len returns the number of facts across all categories.
func (s PatternSet) Len() int {
	n := 0
	for _, facts := range s {
		n += len(facts)
	}
	return n
}

// Clone returns an independent copy. PatternFact holds no references so
// copying the slices is enough.
func (s PatternSet) Clone() PatternSet {
	out := make(PatternSet, len(s))
	for c, facts := range s {
		cp := make([]PatternFact, len(facts))
		copy(cp, facts)
		out[c] = cp
	}
	return out
}

// Sort orders every category by start position and drops exact duplicates.
func (s PatternSet) Sort() {
	for c, facts := range s {
		sort.SliceStable(facts, func(i, j int) bool {
			return facts[i].Start.Before(facts[j].Start)
		})
		out := facts[:0]
		for i, f := range facts {
			if i > 0 && f == out[len(out)-1] {
				continue
			}
			out = append(out, f)
		}
		s[c] = out
	}
}

// FindAt returns the fact with the earliest start whose span contains pos.
// Ties between categories resolve in AllCategories order.
func (s PatternSet) FindAt(pos Position) (PatternFact, bool) {
	var best PatternFact
	found := false
	for _, c := range AllCategories {
		for _, f := range s[c] {
			if !f.Contains(pos) {
				continue
			}
			if !found || f.Start.Before(best.Start) {
				best = f
				found = true
			}
			break
		}
	}
	return best, found
}

// HoverAnswer is the rendered response for a hover query.
type HoverAnswer struct {
	Markdown string      `json:"markdown"`
	Start    Position    `json:"start"`
	End      Position    `json:"end"`
	Fact     PatternFact `json:"fact"`
}
