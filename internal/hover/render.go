// Package hover turns pattern facts into markdown hover answers.
package hover

import (
	"fmt"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/standardbeagle/bladelsp/internal/extract"
	"github.com/standardbeagle/bladelsp/internal/types"
)

var directiveDocs = map[string]string{
	"if":         "Conditional statement. Usage: @if($condition) ... @endif",
	"foreach":    "Loop through arrays. Usage: @foreach($items as $item) ... @endforeach",
	"include":    "Include another Blade template. Usage: @include('partial')",
	"extends":    "Extend a parent template. Usage: @extends('layouts.app')",
	"section":    "Define a content section. Usage: @section('content') ... @endsection",
	"yield":      "Output a section's content. Usage: @yield('content')",
	"csrf":       "Generate CSRF token field. Usage: @csrf",
	"method":     "Generate method field for forms. Usage: @method('PUT')",
	"auth":       "Check if user is authenticated. Usage: @auth ... @endauth",
	"guest":      "Check if user is guest. Usage: @guest ... @endguest",
	"can":        "Check user permissions. Usage: @can('update', $post) ... @endcan",
	"component":  "Use a Blade component. Usage: @component('alert') ... @endcomponent",
	"slot":       "Define component slot. Usage: @slot('title') ... @endslot",
	"push":       "Push content to a stack. Usage: @push('scripts') ... @endpush",
	"stack":      "Output a stack's content. Usage: @stack('scripts')",
	"lang":       "Retrieve translation. Usage: @lang('messages.welcome')",
	"json":       "Output JSON-encoded data. Usage: @json($data)",
	"error":      "Display validation errors. Usage: @error('field') ... @enderror",
	"env":        "Check the application environment. Usage: @env('local') ... @endenv",
	"production": "Check if in production. Usage: @production ... @endproduction",
	"dd":         "Dump and die. Usage: @dd($variable)",
	"dump":       "Dump variable. Usage: @dump($variable)",
}

// Resolve renders the fact at pos, or returns nil when nothing is there
func Resolve(set types.PatternSet, pos types.Position) *types.HoverAnswer {
	fact, ok := set.FindAt(pos)
	if !ok {
		return nil
	}
	return &types.HoverAnswer{
		Markdown: Render(fact),
		Start:    fact.Start,
		End:      fact.End,
		Fact:     fact,
	}
}

// Render produces the markdown shown for fact
func Render(f types.PatternFact) string {
	switch f.Category {
	case types.CategoryDirective:
		return renderDirective(f)
	case types.CategoryView:
		return fmt.Sprintf("**View**: `%s`\n\nPath: `resources/views/%s.blade.php`",
			f.Text, strings.ReplaceAll(f.Text, ".", "/"))
	case types.CategoryComponent:
		return fmt.Sprintf("**Blade Component**: `<x-%s>`\n\nComponent: `%s`", f.Text, f.Text)
	case types.CategoryLivewire:
		return fmt.Sprintf("**Livewire Component**: `<livewire:%s>`\n\nClass: `App\\Livewire\\%s`",
			f.Text, livewireClass(f.Text))
	case types.CategorySlot:
		return fmt.Sprintf("**Slot**: `%s`", f.Text)
	case types.CategoryEnv:
		fallback := ""
		if f.HasDefault {
			fallback = " (has fallback)"
		}
		return fmt.Sprintf("**Environment Variable**: `%s`%s", f.Text, fallback)
	case types.CategoryConfig:
		file, _, _ := strings.Cut(f.Text, ".")
		if file == "" {
			file = "config"
		}
		return fmt.Sprintf("**Config**: `%s`\n\nFile: `config/%s.php`", f.Text, file)
	case types.CategoryMiddleware:
		return fmt.Sprintf("**Middleware**: `%s`", f.Text)
	case types.CategoryTranslation:
		return fmt.Sprintf("**Translation**: `%s`", f.Text)
	case types.CategoryAsset:
		return fmt.Sprintf("**Asset Helper**: `%s`\n\nPath: `%s`", assetHelper(f.Detail), f.Text)
	case types.CategoryBinding:
		if f.Detail == "class" {
			return fmt.Sprintf("**Container Binding**: `%s`\n\n(Class reference)", f.Text)
		}
		return fmt.Sprintf("**Container Binding**: `%s`", f.Text)
	case types.CategoryRoute:
		return fmt.Sprintf("**Route**: `%s`", f.Text)
	case types.CategoryURL:
		return fmt.Sprintf("**URL**: `%s`", f.Text)
	case types.CategoryAction:
		return fmt.Sprintf("**Action**: `%s`", f.Text)
	}
	return fmt.Sprintf("`%s`", f.Text)
}

func renderDirective(f types.PatternFact) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Blade Directive**: `@%s`", f.Text)

	if f.Text == "extends" || f.Text == "include" {
		view := firstQuoted(f.Detail)
		if view == "" {
			view = "unknown"
		}
		fmt.Fprintf(&sb, "\n\nView: `%s`", view)
	}

	if doc, ok := directiveDocs[f.Text]; ok {
		sb.WriteString("\n\n")
		sb.WriteString(doc)
	} else if !extract.IsBladeDirective(f.Text) {
		if s, ok := Suggest(f.Text); ok {
			fmt.Fprintf(&sb, "\n\nDid you mean `@%s`?", s)
		}
	}
	return sb.String()
}

// firstQuoted returns the contents of the first quoted string in args
func firstQuoted(args string) string {
	i := strings.IndexAny(args, `'"`)
	if i < 0 {
		return ""
	}
	quote := args[i]
	rest := args[i+1:]
	j := strings.IndexByte(rest, quote)
	if j < 0 {
		return ""
	}
	return rest[:j]
}

func assetHelper(detail string) string {
	switch detail {
	case "":
		return "asset()"
	case "vite":
		return "@vite"
	}
	return detail + "()"
}

// livewireClass maps admin.user-table to Admin\UserTable
func livewireClass(name string) string {
	segments := strings.Split(name, ".")
	for i, seg := range segments {
		segments[i] = pascal(seg)
	}
	return strings.Join(segments, "\\")
}

func pascal(s string) string {
	var sb strings.Builder
	upper := true
	for _, r := range s {
		if r == '-' || r == '_' {
			upper = true
			continue
		}
		if upper {
			sb.WriteString(strings.ToUpper(string(r)))
			upper = false
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ToProtocol converts an answer to an LSP hover payload
func ToProtocol(a *types.HoverAnswer) *protocol.Hover {
	if a == nil {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: a.Markdown,
		},
		Range: &protocol.Range{
			Start: protocol.Position{Line: a.Start.Line, Character: a.Start.Column},
			End:   protocol.Position{Line: a.End.Line, Character: a.End.Column},
		},
	}
}
