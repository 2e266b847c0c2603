// Package guardian inspects the free-text justification an agent attaches to
// a proposed action and reports prompt-injection signals.
//
// Architecture:
//
//	Scanner            marker matching over Unicode-sanitized text, plus
//	                   advisory heuristic rules
//	Report             signals found in one justification
//
// Only marker signals are blocking; the policy pipeline decides what to do
// with them. Heuristic signals are recorded for review.
package guardian

// Signal represents a single security signal found in a justification.
type Signal struct {
	// ID is a short, unique identifier (e.g., "instruction_marker").
	ID string

	// Category groups related signals (e.g., "prompt-injection", "obfuscation").
	Category string

	// Marker is the configured marker that matched, set on marker signals only.
	Marker string

	// Blocking marks signals the pipeline must act on.
	Blocking bool

	// Confidence is 0.0–1.0 how certain the rule is about this signal.
	Confidence float64

	// Description is a human-readable explanation of why this signal fired.
	Description string
}

// Report is the result of scanning one justification.
type Report struct {
	// Signals in detection order: markers first, in configured order.
	Signals []Signal

	// Sanitized is the lower-cased text the markers were matched against.
	Sanitized string

	// Obfuscated is true when the raw text carried invisible or confusable
	// Unicode that sanitization removed or folded.
	Obfuscated bool
}

// Marker returns the first blocking marker found, if any.
func (r Report) Marker() (string, bool) {
	for _, s := range r.Signals {
		if s.Blocking {
			return s.Marker, true
		}
	}
	return "", false
}

// SignalIDs lists the ids of all signals in the report.
func (r Report) SignalIDs() []string {
	ids := make([]string, len(r.Signals))
	for i, s := range r.Signals {
		ids[i] = s.ID
	}
	return ids
}
