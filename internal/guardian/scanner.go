package guardian

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gzhole/agentlock/internal/unicode"
)

// DefaultMarkers are the instruction markers that block access-control
// changes when found in a justification.
var DefaultMarkers = []string{"whitelist", "ignore", "override"}

// Scanner detects prompt-injection signals in justifications.
// It is safe for concurrent use.
type Scanner struct {
	markers []string
	rules   []heuristicRule
}

// heuristicRule is a single advisory detection pattern.
type heuristicRule struct {
	signal Signal
	match  func(text string) bool
}

// NewScanner creates a scanner for the given markers. Markers are matched
// case-insensitively as substrings; empty entries are ignored. A nil or
// empty list selects DefaultMarkers.
func NewScanner(markers []string) *Scanner {
	s := &Scanner{}
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			s.markers = append(s.markers, m)
		}
	}
	if len(s.markers) == 0 {
		s.markers = append([]string(nil), DefaultMarkers...)
	}
	s.rules = buildRules()
	return s
}

// Markers returns the normalized marker list.
func (s *Scanner) Markers() []string {
	return append([]string(nil), s.markers...)
}

// Scan sanitizes text and reports every signal found in it.
func (s *Scanner) Scan(text string) Report {
	res := unicode.Scan(text)
	clean := strings.ToLower(res.Sanitized)
	rep := Report{Sanitized: clean, Obfuscated: !res.Clean}

	for _, m := range s.markers {
		if strings.Contains(clean, m) {
			rep.Signals = append(rep.Signals, Signal{
				ID:          "instruction_marker",
				Category:    "prompt-injection",
				Marker:      m,
				Blocking:    true,
				Confidence:  1.0,
				Description: fmt.Sprintf("Justification contains instruction marker %q", m),
			})
		}
	}

	for _, r := range s.rules {
		if r.match(clean) {
			rep.Signals = append(rep.Signals, r.signal)
		}
	}

	if rep.Obfuscated {
		rep.Signals = append(rep.Signals, Signal{
			ID:          "unicode_obfuscation",
			Category:    "obfuscation",
			Confidence:  0.7,
			Description: fmt.Sprintf("Justification contains %d invisible or confusable code point(s)", len(res.Threats)),
		})
	}
	return rep
}

func buildRules() []heuristicRule {
	return []heuristicRule{
		// --- Prompt injection: instruction override ---
		{
			signal: Signal{
				ID:          "instruction_override",
				Category:    "prompt-injection",
				Confidence:  0.85,
				Description: "Justification contains instruction override language (e.g., 'disregard previous')",
			},
			match: func(text string) bool {
				return matchesAnyPattern(text, instructionOverridePatterns)
			},
		},

		// --- Indirect injection: chat-template or role tokens in evidence ---
		{
			signal: Signal{
				ID:          "indirect_injection",
				Category:    "prompt-injection",
				Confidence:  0.80,
				Description: "Justification contains embedded instructions targeting an AI agent",
			},
			match: func(text string) bool {
				return matchesAnyPattern(text, indirectInjectionPatterns)
			},
		},

		// --- Security bypass: talk the guardrails down ---
		{
			signal: Signal{
				ID:          "disable_security",
				Category:    "security-bypass",
				Confidence:  0.90,
				Description: "Justification asks to disable or bypass security controls",
			},
			match: func(text string) bool {
				return matchesAnyPattern(text, disableSecurityPatterns)
			},
		},

		// --- Obfuscation: base64 payload ---
		{
			signal: Signal{
				ID:          "obfuscated_base64",
				Category:    "obfuscation",
				Confidence:  0.60,
				Description: "Justification contains a long base64-like payload that may hide instructions",
			},
			match: func(text string) bool {
				return base64PayloadPattern.MatchString(text)
			},
		},
	}
}

// ---------------------------------------------------------------------------
// Pattern definitions
// ---------------------------------------------------------------------------

var instructionOverridePatterns = compilePatterns([]string{
	`(?i)disregard\s+(all\s+)?(previous|prior|your)\s+(previous\s+)?(instructions?|rules?|guidelines?|policies)`,
	`(?i)forget\s+(all\s+)?(your|previous)\s+(instructions?|rules?)`,
	`(?i)you\s+are\s+now\s+(free|unrestricted|unfiltered)`,
	`(?i)new\s+instructions?:\s+`,
	`(?i)system\s*:\s*(you\s+are|forget)`,
})

var indirectInjectionPatterns = compilePatterns([]string{
	`(?i)\[inst\]`,
	`(?i)<\|im_start\|>system`,
	`(?i)begin\s+hidden\s+instructions?`,
	`(?i)important:\s*(disregard|do\s+not\s+block)`,
})

var disableSecurityPatterns = compilePatterns([]string{
	`(?i)(disable|turn\s+off|bypass|skip)\s+(agentlock|guardrails?|security|policy|policies)`,
	`(?i)(pre-?approved|already\s+approved)\s+by\s+(the\s+)?(soc|admin|ciso|manager)`,
	`(?i)no\s+(human\s+)?review\s+(is\s+)?(needed|required)`,
})

// base64PayloadPattern matches base64 strings >= 40 chars (likely encoded
// payloads, not hashes or short ids). Runs on lower-cased text.
var base64PayloadPattern = regexp.MustCompile(
	`[a-z0-9+/]{40,}={1,2}`,
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

func matchesAnyPattern(s string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
