// Package unicode folds justification text to the form a reviewer would read,
// reporting every code point that could hide or disguise an instruction
// marker: invisible format characters, bidi controls, tag characters,
// fullwidth forms and Latin look-alikes.
package unicode

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Threat is one suspicious code point.
type Threat struct {
	Category    string
	Description string
	Position    int // byte offset in the input
	Codepoint   string
}

type ScanResult struct {
	Clean   bool
	Threats []Threat
	// Sanitized has hidden code points removed and look-alikes folded to
	// ASCII, so marker matching sees what the agent meant to say.
	Sanitized string
}

// class describes how one kind of suspicious code point is reported and
// whether it survives sanitisation in folded form.
type class struct {
	category string
	describe string
	contains func(r rune) bool
}

var classes = []class{
	{"zero-width", "invisible character %s hides text from display", inSet(
		'\u200B', '\u200C', '\u200D', '\u200E', '\u200F', '\u2060', '\u180E', '\uFEFF', '\u00AD',
	)},
	{"bidi-override", "bidirectional control %s reorders displayed text", func(r rune) bool {
		return (r >= '\u202A' && r <= '\u202E') || (r >= '\u2066' && r <= '\u2069')
	}},
	{"tag-char", "tag character %s carries hidden ASCII", func(r rune) bool {
		return r >= 0xE0000 && r <= 0xE007F
	}},
	{"control-char", "control character %s in free text", func(r rune) bool {
		if r == '\t' || r == '\n' || r == '\r' {
			return false
		}
		return r <= 0x1F || (r >= 0x7F && r <= 0x9F)
	}},
	{"fullwidth", "fullwidth form %s imitates ASCII", func(r rune) bool {
		return r >= 0xFF01 && r <= 0xFF5E
	}},
	{"homoglyph-cyrillic", "Cyrillic %s looks like Latin", func(r rune) bool {
		_, ok := cyrillic[r]
		return ok
	}},
	{"homoglyph-greek", "Greek %s looks like Latin", func(r rune) bool {
		_, ok := greek[r]
		return ok
	}},
}

func inSet(runes ...rune) func(rune) bool {
	set := make(map[rune]struct{}, len(runes))
	for _, r := range runes {
		set[r] = struct{}{}
	}
	return func(r rune) bool {
		_, ok := set[r]
		return ok
	}
}

var cyrillic = map[rune]rune{
	'а': 'a', 'А': 'A', 'В': 'B', 'с': 'c', 'С': 'C', 'е': 'e', 'Е': 'E',
	'Н': 'H', 'і': 'i', 'І': 'I', 'ј': 'j', 'К': 'K', 'М': 'M', 'о': 'o',
	'О': 'O', 'р': 'p', 'Р': 'P', 'ѕ': 's', 'Т': 'T', 'х': 'x', 'Х': 'X',
	'у': 'y', 'У': 'Y',
}

var greek = map[rune]rune{
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z', 'Η': 'H', 'Ι': 'I', 'Κ': 'K',
	'Μ': 'M', 'Ν': 'N', 'Ο': 'O', 'ο': 'o', 'Ρ': 'P', 'Τ': 'T', 'Υ': 'Y',
	'Χ': 'X',
}

// fold maps a visible look-alike to its ASCII letter. Invisible code points
// have no folded form and are dropped.
func fold(r rune) (rune, bool) {
	if r >= 0xFF01 && r <= 0xFF5E {
		return r - 0xFF01 + '!', true
	}
	if l, ok := cyrillic[r]; ok {
		return l, true
	}
	if l, ok := greek[r]; ok {
		return l, true
	}
	return 0, false
}

// Scan classifies every code point of input and builds its sanitized form.
func Scan(input string) ScanResult {
	res := ScanResult{Clean: true}
	var b strings.Builder
	b.Grow(len(input))

	for i := 0; i < len(input); {
		r, size := utf8.DecodeRuneInString(input[i:])
		if r == utf8.RuneError && size == 1 {
			res.add(Threat{
				Category:    "invalid-utf8",
				Description: "invalid UTF-8 byte",
				Position:    i,
				Codepoint:   fmt.Sprintf("0x%02X", input[i]),
			})
			i++
			continue
		}

		if c, ok := classify(r); ok {
			cp := fmt.Sprintf("U+%04X", r)
			res.add(Threat{
				Category:    c.category,
				Description: fmt.Sprintf(c.describe, cp),
				Position:    i,
				Codepoint:   cp,
			})
			if l, ok := fold(r); ok {
				b.WriteRune(l)
			}
		} else {
			b.WriteRune(r)
		}
		i += size
	}

	res.Sanitized = b.String()
	return res
}

func (r *ScanResult) add(t Threat) {
	r.Clean = false
	r.Threats = append(r.Threats, t)
}

func classify(r rune) (class, bool) {
	if r < utf8.RuneSelf && r >= 0x20 && r != 0x7F {
		return class{}, false
	}
	for _, c := range classes {
		if c.contains(r) {
			return c, true
		}
	}
	return class{}, false
}

// Sanitize returns only the folded text.
func Sanitize(input string) string {
	return Scan(input).Sanitized
}
