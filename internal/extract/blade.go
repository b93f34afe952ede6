package extract

import (
	"bytes"
	"strings"

	"github.com/standardbeagle/bladelsp/internal/types"
)

// bladeScan is the result of lexing a Blade template.
//
// php holds a PHP program with the same byte layout as the template: echo
// bodies, @php blocks, raw PHP and directive arguments are copied in place,
// every other byte is blanked and each fragment is prefixed by ';' so the
// fragments parse as separate statements. markup is the template with
// comments, verbatim blocks and PHP removed, for the HTML grammar.
type bladeScan struct {
	facts  []types.PatternFact
	php    []byte
	markup []byte
	hasPHP bool
}

func blanked(src []byte) []byte {
	out := make([]byte, len(src))
	for i, b := range src {
		if b == '\n' || b == '\r' {
			out[i] = b
		} else {
			out[i] = ' '
		}
	}
	return out
}

func blankRange(buf []byte, start, end int) {
	if end > len(buf) {
		end = len(buf)
	}
	for i := start; i < end; i++ {
		if buf[i] != '\n' && buf[i] != '\r' {
			buf[i] = ' '
		}
	}
}

func indexFrom(src []byte, from int, token string) int {
	if from >= len(src) {
		return -1
	}
	i := bytes.Index(src[from:], []byte(token))
	if i < 0 {
		return -1
	}
	return from + i
}

func scanBlade(src []byte, li lineIndex) *bladeScan {
	sc := &bladeScan{
		php:    blanked(src),
		markup: append([]byte(nil), src...),
	}
	n := len(src)
	i := 0
	for i < n {
		switch {
		case bytes.HasPrefix(src[i:], []byte("{{--")):
			stop := n
			if end := indexFrom(src, i+4, "--}}"); end >= 0 {
				stop = end + 4
			}
			blankRange(sc.markup, i, stop)
			i = stop
		case bytes.HasPrefix(src[i:], []byte("@{{")):
			// escaped echo renders literally
			stop := i + 3
			if end := indexFrom(src, stop, "}}"); end >= 0 {
				stop = end + 2
			}
			i = stop
		case bytes.HasPrefix(src[i:], []byte("@@")):
			i += 2
		case bytes.HasPrefix(src[i:], []byte("{!!")):
			end := indexFrom(src, i+3, "!!}")
			if end < 0 {
				i += 3
				continue
			}
			sc.expression(src, i, 3, end, 3)
			i = end + 3
		case bytes.HasPrefix(src[i:], []byte("{{")):
			end := indexFrom(src, i+2, "}}")
			if end < 0 {
				i += 2
				continue
			}
			sc.expression(src, i, 2, end, 2)
			i = end + 2
		case bytes.HasPrefix(src[i:], []byte("<?php")):
			i = sc.rawPHP(src, i, len("<?php"), false)
		case bytes.HasPrefix(src[i:], []byte("<?=")):
			i = sc.rawPHP(src, i, len("<?="), true)
		case src[i] == '@' && i+1 < n && isNameStart(src[i+1]) && (i == 0 || !isWordByte(src[i-1])):
			i = sc.directive(src, li, i)
		default:
			i++
		}
	}
	return sc
}

// expression copies the echo body between the delimiters as a bracketed
// PHP expression statement.
func (sc *bladeScan) expression(src []byte, open, openLen, closeAt, closeLen int) {
	copy(sc.php[open+openLen:closeAt], src[open+openLen:closeAt])
	sc.php[open] = ';'
	sc.php[open+1] = '['
	sc.php[closeAt] = ']'
	sc.hasPHP = true
	blankRange(sc.markup, open, closeAt+closeLen)
}

func (sc *bladeScan) rawPHP(src []byte, open, openLen int, echo bool) int {
	n := len(src)
	end := indexFrom(src, open+openLen, "?>")
	stop := n
	if end >= 0 {
		stop = end
	}
	copy(sc.php[open+openLen:stop], src[open+openLen:stop])
	sc.php[open] = ';'
	if echo {
		sc.php[open+1] = '['
	}
	if end >= 0 {
		if echo {
			sc.php[end] = ']'
		} else {
			sc.php[end] = ';'
		}
	}
	sc.hasPHP = true
	if end < 0 {
		blankRange(sc.markup, open, n)
		return n
	}
	blankRange(sc.markup, open, end+2)
	return end + 2
}

func (sc *bladeScan) directive(src []byte, li lineIndex, at int) int {
	n := len(src)
	nameEnd := at + 1
	for nameEnd < n && isWordByte(src[nameEnd]) {
		nameEnd++
	}
	name := string(src[at+1 : nameEnd])
	f := li.fact(types.CategoryDirective, name, at, nameEnd)

	open := nameEnd
	for open < n && (src[open] == ' ' || src[open] == '\t') {
		open++
	}
	hasArgs := open < n && src[open] == '('

	switch {
	case name == "verbatim":
		sc.facts = append(sc.facts, f)
		end := indexFrom(src, nameEnd, "@endverbatim")
		if end < 0 {
			blankRange(sc.markup, nameEnd, n)
			return n
		}
		blankRange(sc.markup, nameEnd, end)
		return end
	case name == "php" && !hasArgs:
		sc.facts = append(sc.facts, f)
		end := indexFrom(src, nameEnd, "@endphp")
		if end < 0 {
			return nameEnd
		}
		copy(sc.php[nameEnd:end], src[nameEnd:end])
		sc.php[at] = ';'
		sc.hasPHP = true
		blankRange(sc.markup, nameEnd, end)
		return end
	case !hasArgs:
		sc.facts = append(sc.facts, f)
		return nameEnd
	}

	closing := matchParen(src, open, n)
	if closing < 0 {
		sc.facts = append(sc.facts, f)
		return nameEnd
	}
	args := span{open + 1, closing}
	f.Detail = strings.TrimSpace(string(src[args.start:args.end]))
	sc.facts = append(sc.facts, f)

	if ref, ok := directiveRefs[name]; ok {
		sc.facts = append(sc.facts, argFacts(li, src, ref.category, ref.arg, args, name)...)
	}

	if bladeDirectives[name] && !loopDirectives[name] {
		copy(sc.php[args.start:args.end], src[args.start:args.end])
		sc.php[at] = ';'
		sc.php[open] = '['
		sc.php[closing] = ']'
		sc.hasPHP = true
	}
	blankRange(sc.markup, open, closing+1)
	return closing + 1
}
