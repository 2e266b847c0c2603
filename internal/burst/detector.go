// Package burst detects suspicious repetition of medium-risk actions.
package burst

import (
	"time"

	"github.com/gzhole/agentlock/internal/action"
)

const (
	DefaultWindow    = 60 * time.Second
	DefaultThreshold = 4
)

// EventLog is the part of the state store the detector uses.
type EventLog interface {
	RecordEvent(kind string, at time.Time)
	CountEvents(kind string, since time.Time) int
	RecordAndCount(kind string, at, since time.Time) int
}

// Detector keeps a sliding window per action kind and signals when the
// number of MEDIUM-risk evaluations inside it reaches the threshold.
type Detector struct {
	events    EventLog
	window    time.Duration
	threshold int
}

// NewDetector creates a detector. Non-positive window or threshold fall back
// to the defaults.
func NewDetector(events EventLog, window time.Duration, threshold int) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{events: events, window: window, threshold: threshold}
}

// Window returns the sliding window length.
func (d *Detector) Window() time.Duration { return d.window }

// Threshold returns the event count that triggers escalation.
func (d *Detector) Threshold() int { return d.threshold }

// Record notes an evaluation of kind at now. Only MEDIUM risk is tracked.
func (d *Detector) Record(kind string, risk action.RiskLevel, now time.Time) {
	if risk != action.RiskMedium {
		return
	}
	d.events.RecordEvent(kind, now)
}

// Count returns how many evaluations of kind fall inside the window ending
// at now.
func (d *Detector) Count(kind string, now time.Time) int {
	return d.events.CountEvents(kind, now.Add(-d.window))
}

// Observe records an evaluation of kind at now and returns how many
// evaluations of that kind fall inside the window, including this one.
// Only MEDIUM risk is tracked; other levels return 0 without recording.
func (d *Detector) Observe(kind string, risk action.RiskLevel, now time.Time) int {
	if risk != action.RiskMedium {
		return 0
	}
	return d.events.RecordAndCount(kind, now, now.Add(-d.window))
}

// ShouldEscalate records the evaluation and reports whether the window count
// reached the threshold.
func (d *Detector) ShouldEscalate(kind string, risk action.RiskLevel, now time.Time) bool {
	return d.Observe(kind, risk, now) >= d.threshold
}
