package extract

import "sort"

// bladeDirectives lists the directives understood by the Blade compiler.
// Unknown @words are still reported as directive facts but their
// arguments are not parsed as PHP.
var bladeDirectives = map[string]bool{}

func init() {
	for _, d := range []string{
		"if", "elseif", "else", "endif", "unless", "endunless",
		"isset", "endisset", "empty", "endempty",
		"auth", "endauth", "guest", "endguest",
		"production", "endproduction", "env", "endenv",
		"switch", "case", "break", "default", "endswitch",
		"for", "endfor", "foreach", "endforeach", "forelse", "endforelse",
		"while", "endwhile", "continue",
		"include", "includeIf", "includeWhen", "includeUnless", "includeFirst", "each",
		"extends", "section", "endsection", "yield", "show", "stop", "append", "overwrite", "parent",
		"hasSection", "sectionMissing",
		"push", "endpush", "pushOnce", "endPushOnce", "prepend", "endprepend", "stack", "once", "endonce",
		"props", "aware", "component", "endcomponent", "componentFirst", "slot", "endslot",
		"livewire", "livewireStyles", "livewireScripts", "livewireScriptConfig",
		"csrf", "method", "error", "enderror",
		"can", "endcan", "cannot", "endcannot", "canany", "endcanany",
		"lang", "choice", "json", "js",
		"php", "endphp", "verbatim", "endverbatim", "inject", "use",
		"dd", "dump", "vite", "viteReactRefresh",
		"class", "style", "checked", "selected", "disabled", "readonly", "required",
		"session", "endsession", "fragment", "endfragment",
		"persist", "endpersist", "teleport", "endteleport", "entangle", "this",
	} {
		bladeDirectives[d] = true
	}
}

// IsBladeDirective reports whether name is a built-in Blade directive.
func IsBladeDirective(name string) bool {
	return bladeDirectives[name]
}

// BladeDirectives returns the built-in directive names in sorted order.
func BladeDirectives() []string {
	out := make([]string, 0, len(bladeDirectives))
	for d := range bladeDirectives {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
