// Package trust adapts provenance trust scores from post-hoc outcome labels.
package trust

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gzhole/agentlock/internal/logger"
)

var log = logger.New("trust")

var (
	ErrInvalidOutcome      = errors.New("invalid outcome")
	ErrInvalidLearningRate = errors.New("learning rate must be in (0,1]")
)

// DefaultLearningRate is the EMA step used when none is configured.
const DefaultLearningRate = 0.2

// Outcome is the real-world label reported for an executed action.
type Outcome string

const (
	OutcomeGood Outcome = "GOOD"
	OutcomeBad  Outcome = "BAD"
)

// ParseOutcome converts a case-insensitive label into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToUpper(strings.TrimSpace(s))); o {
	case OutcomeGood, OutcomeBad:
		return o, nil
	}
	return "", fmt.Errorf("%w %q (valid: GOOD, BAD)", ErrInvalidOutcome, s)
}

// Table is the part of the state store the learner mutates.
type Table interface {
	UpdateTrust(source string, fn func(old float64) float64) float64
}

// Learner applies the exponential-moving-average update
//
//	τ' = clip((1 − η)·τ + η·[outcome == GOOD], 0, 1)
//
// to every source independently.
type Learner struct {
	table Table
}

// NewLearner creates a learner over the given trust table.
func NewLearner(table Table) *Learner {
	return &Learner{table: table}
}

// UpdateFromOutcome applies one outcome to each distinct source and returns
// the updated scores.
func (l *Learner) UpdateFromOutcome(sources []string, outcome Outcome, eta float64) (map[string]float64, error) {
	if !(eta > 0 && eta <= 1) {
		return nil, fmt.Errorf("%w (got %g)", ErrInvalidLearningRate, eta)
	}
	if outcome != OutcomeGood && outcome != OutcomeBad {
		return nil, fmt.Errorf("%w %q", ErrInvalidOutcome, outcome)
	}

	target := 0.0
	if outcome == OutcomeGood {
		target = 1.0
	}

	updated := make(map[string]float64, len(sources))
	for _, src := range sources {
		if _, done := updated[src]; done {
			continue
		}
		updated[src] = l.table.UpdateTrust(src, func(old float64) float64 {
			return (1-eta)*old + eta*target
		})
		log.Debugf("trust %q -> %.4f after %s outcome (eta=%g)", src, updated[src], outcome, eta)
	}
	return updated, nil
}
